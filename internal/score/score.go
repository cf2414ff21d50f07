// Package score turns extracted wallet metrics into a composite rank.
package score

import (
	"math"

	"kol-scoreboard/internal/domain"
)

// Component scaling constants.
const (
	pnlCap          = 35.0
	pnlPerUnit      = 3.5
	pnlUnitUSD      = 10000.0
	winRateBaseline = 40.0
	winRateFactor   = 1.25
	holdCap         = 20.0
	holdPerUnit     = 10.0
	holdUnitSeconds = 30.0
	volumeCap       = 10.0
	volumePerUnit   = 5.0
	volumeUnit      = 500.0
	riskCap         = 10.0
	riskDivisor     = 100.0
)

// labelThresholds maps minimum totals to labels, highest first.
var labelThresholds = []struct {
	min   float64
	label domain.RankLabel
}{
	{90, domain.RankSPlus},
	{80, domain.RankS},
	{70, domain.RankAPlus},
	{60, domain.RankA},
	{50, domain.RankBPlus},
	{40, domain.RankB},
	{30, domain.RankCPlus},
	{20, domain.RankC},
	{0, domain.RankD},
}

// Score computes the rank score for the given metrics.
// Pure and total: every WalletMetrics, including a fully defaulted one, yields a score.
func Score(m domain.WalletMetrics) domain.RankScore {
	c := Components(m)
	total := c.Sum()
	return domain.RankScore{
		Components: c,
		Total:      total,
		Label:      LabelFor(total),
	}
}

// Components computes each factor independently.
func Components(m domain.WalletMetrics) domain.ScoreComponents {
	return domain.ScoreComponents{
		PnL:      pnlComponent(m.RealizedPnL.Float64()),
		WinRate:  winRateComponent(m.WinRate.OrZero()),
		HoldTime: holdComponent(float64(m.HoldSeconds())),
		Volume:   volumeComponent(float64(m.TokensTraded)),
		Risk:     riskComponent(m.BestTradePercent()),
	}
}

// LabelFor maps a total score to its label. Totals below zero are F.
func LabelFor(total float64) domain.RankLabel {
	for _, t := range labelThresholds {
		if total >= t.min {
			return t.label
		}
	}
	return domain.RankF
}

// HasRankingInputs reports whether any input the score depends on most was found.
// Callers may use it to present Unranked instead of a score computed on defaults.
func HasRankingInputs(m domain.WalletMetrics) bool {
	return m.PnLKnown || m.WinRate.Known || m.MedianHoldTime != nil
}

func pnlComponent(pnl float64) float64 {
	magnitude := math.Min(pnlCap, math.Abs(pnl)/pnlUnitUSD*pnlPerUnit)
	if pnl < 0 {
		return -magnitude
	}
	return magnitude
}

func winRateComponent(winRate float64) float64 {
	return (winRate - winRateBaseline) * winRateFactor
}

func holdComponent(seconds float64) float64 {
	return clamp(seconds/holdUnitSeconds*holdPerUnit, holdCap)
}

func volumeComponent(tokens float64) float64 {
	return clamp(tokens/volumeUnit*volumePerUnit, volumeCap)
}

func riskComponent(bestPct float64) float64 {
	return clamp(bestPct/riskDivisor, riskCap)
}

// clamp bounds v to [0, max].
func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Min(v, max)
}
