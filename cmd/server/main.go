// Package main runs the KOL scoreboard HTTP service:
// - wallet stats: render → extract → score, behind a result cache
// - votes: store, change bridge and live stream fan-out
package main

import (
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
