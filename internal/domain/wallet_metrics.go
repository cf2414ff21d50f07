package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MetricsWindow is the only trading window the profile pages are fetched for.
const MetricsWindow = "30d"

// HoldTime is a median hold duration as displayed plus its normalized seconds.
type HoldTime struct {
	Value   int64  // number as displayed
	Unit    string // second | minute | hour | day
	Seconds int64  // normalized duration
}

// WalletMetrics is the structured performance summary extracted from one profile page.
// Built once per scrape and never persisted.
type WalletMetrics struct {
	Address             string
	Balance             *Money     // SOL balance, nil if not found
	BalanceUSD          *Money     // USD value of balance, nil if not found
	RealizedPnL         Money      // signed USD, zero when not found
	PnLKnown            bool       // realized PnL was present on the page
	RealizedROI         *float64   // percent, nil if not found
	WinRate             Percentage // token winrate
	TokensTraded        int64      // 0 when not found
	BestTrade           *Money     // largest single-trade USD gain, nil if none
	BestTradePercentage *float64   // percent gain of BestTrade, nil if none
	MedianHoldTime      *HoldTime  // nil if not found
	IsInactive          bool       // balance missing or zero
	Window              string     // always MetricsWindow
	ScrapedAt           time.Time
}

// EmptyMetrics returns the fully defaulted metrics used when a page could not be rendered.
func EmptyMetrics(address string, at time.Time) WalletMetrics {
	return WalletMetrics{
		Address:     address,
		RealizedPnL: USD(decimal.Zero),
		IsInactive:  true,
		Window:      MetricsWindow,
		ScrapedAt:   at,
	}
}

// HoldSeconds returns the normalized median hold time, 0 when unknown.
func (m WalletMetrics) HoldSeconds() int64 {
	if m.MedianHoldTime == nil {
		return 0
	}
	return m.MedianHoldTime.Seconds
}

// BestTradePercent returns the best trade percent gain, 0 when unknown.
func (m WalletMetrics) BestTradePercent() float64 {
	if m.BestTradePercentage == nil {
		return 0
	}
	return *m.BestTradePercentage
}
