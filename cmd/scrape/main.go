// Package main scrapes one wallet profile and prints the extracted metrics and score.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"kol-scoreboard/internal/config"
	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/observability"
	"kol-scoreboard/internal/orchestrator"
	"kol-scoreboard/internal/render"
	"kol-scoreboard/internal/solana"
)

// output is the printed scrape result.
type output struct {
	Address     string               `json:"address"`
	Unavailable bool                 `json:"unavailable"`
	Reason      string               `json:"reason,omitempty"`
	ElapsedMs   int64                `json:"elapsed_ms"`
	Metrics     domain.WalletMetrics `json:"metrics"`
	Score       domain.RankScore     `json:"score"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := config.NewViper()
	var configFile string

	cmd := &cobra.Command{
		Use:   "kolscore-scrape <address>",
		Short: "render one wallet profile, extract its metrics and score it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := observability.NewLogger(observability.LogOptions{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			})

			address := args[0]
			if err := solana.ValidateWallet(address); err != nil {
				logger.Warn("address is not a wallet, scraping anyway", "address", address, "error", err)
			}

			orch := orchestrator.New(orchestrator.Options{
				Renderer: render.NewFromConfig(cfg.Scrape, logger),
				Budget:   cfg.Scrape.Budget,
				Logger:   logger,
			})
			res, err := orch.FetchWalletStats(cmd.Context(), address)

			out := output{
				Address:     address,
				Unavailable: res.Unavailable,
				ElapsedMs:   res.Duration.Milliseconds(),
				Metrics:     res.Metrics,
				Score:       res.Score,
			}
			var failure *orchestrator.ScrapeFailure
			if errors.As(err, &failure) {
				out.Reason = string(failure.Reason)
			} else if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	flags.String("renderer", config.RendererChrome, "page renderer (chrome, http)")
	flags.String("url-template", "", "profile URL template with {address} and {window}")
	flags.Bool("no-sandbox", false, "disable the browser sandbox")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("scrape.renderer", flags.Lookup("renderer"))
	_ = v.BindPFlag("scrape.url_template", flags.Lookup("url-template"))
	_ = v.BindPFlag("scrape.no_sandbox", flags.Lookup("no-sandbox"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	return cmd
}
