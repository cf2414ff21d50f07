package domain

import "time"

// ScrapeOutcome classifies a completed scrape.
type ScrapeOutcome string

const (
	ScrapeOK          ScrapeOutcome = "ok"
	ScrapeUnavailable ScrapeOutcome = "unavailable"
	ScrapeCached      ScrapeOutcome = "cached"
)

// ScrapeRun is one audit record of a wallet scrape. Carries no metric values.
// Corresponds to scrape_runs table in ClickHouse.
type ScrapeRun struct {
	Address    string
	StartedAt  time.Time
	DurationMs int64
	Outcome    ScrapeOutcome
	Reason     string    // render failure reason, empty on success
	Rank       RankLabel // label returned to the caller
}
