package api

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/shopspring/decimal"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/orchestrator"
)

const notAvailable = "N/A"

// WalletStatsResponse is the JSON body of GET /api/wallet-stats.
type WalletStatsResponse struct {
	Address             string  `json:"address"`
	Balance             string  `json:"balance"`
	PnL                 string  `json:"pnl"`
	WinRate             string  `json:"winRate"`
	BestTrade           string  `json:"bestTrade"`
	BestTradePercentage float64 `json:"bestTradePercentage"`
	HoldTime            string  `json:"holdTime"`
	TokensTraded        int64   `json:"tokensTraded"`
	Timeframe           string  `json:"timeframe"`
	IsInactive          bool    `json:"isInactive"`
	Rank                string  `json:"rank"`
	Score               float64 `json:"score"`
	Unavailable         bool    `json:"unavailable,omitempty"`
	Cached              bool    `json:"cached,omitempty"`
}

func newWalletStatsResponse(res orchestrator.Result) WalletStatsResponse {
	m := res.Metrics
	out := WalletStatsResponse{
		Address:             m.Address,
		Balance:             formatBalance(m.Balance, m.BalanceUSD),
		PnL:                 formatUSD(m.RealizedPnL.Amount),
		WinRate:             formatWinRate(m.WinRate),
		BestTrade:           notAvailable,
		BestTradePercentage: m.BestTradePercent(),
		HoldTime:            formatHoldTime(m.MedianHoldTime),
		TokensTraded:        m.TokensTraded,
		Timeframe:           m.Window,
		IsInactive:          m.IsInactive,
		Rank:                res.Score.Label.String(),
		Score:               res.Score.Total,
		Unavailable:         res.Unavailable,
	}
	if m.BestTrade != nil {
		out.BestTrade = formatUSD(m.BestTrade.Amount)
	}
	if res.Unavailable {
		out.Balance = notAvailable
		out.PnL = "$0"
	}
	return out
}

// formatUSD renders whole dollars with grouping, sign after the symbol: "$-1,234".
func formatUSD(amount decimal.Decimal) string {
	return "$" + humanize.BigComma(amount.Round(0).BigInt())
}

func formatBalance(sol, usd *domain.Money) string {
	if sol == nil {
		return "0 SOL ($0)"
	}
	value := "$0"
	if usd != nil {
		value = "$" + humanize.CommafWithDigits(usd.Float64(), 2)
	}
	return sol.Amount.String() + " SOL (" + value + ")"
}

func formatWinRate(p domain.Percentage) string {
	if !p.Known {
		return notAvailable
	}
	return strconv.FormatFloat(p.Value, 'f', -1, 64) + "%"
}

func formatHoldTime(h *domain.HoldTime) string {
	if h == nil {
		return notAvailable
	}
	if h.Unit == "" {
		return english.Plural(int(h.Seconds), "second", "")
	}
	return english.Plural(int(h.Value), h.Unit, "")
}
