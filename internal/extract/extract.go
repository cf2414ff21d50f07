// Package extract parses the visible text of a wallet profile page into WalletMetrics.
// Every rule is independent: a rule that does not match leaves its field at the default.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kol-scoreboard/internal/domain"
)

// Extractor converts rendered page text into metrics. Implementations must not panic
// and must default each field independently.
type Extractor interface {
	Extract(address, text string, scrapedAt time.Time) domain.WalletMetrics
}

var (
	balancePattern   = regexp.MustCompile(`Balance:\s*([\d,]+(?:\.\d+)?)\s*SOL\s*\(\$([\d,]+(?:\.\d+)?)\)`)
	pnlPattern       = regexp.MustCompile(`Realized PnL \(ROI\)\s*([+-]?\$[+-]?[\d,]+(?:\.\d+)?)\s*\(([+-]?[\d.]+)%\)`)
	winRatePattern   = regexp.MustCompile(`Token Winrate\s*(\d+(?:\.\d+)?)%`)
	tokensPattern    = regexp.MustCompile(`Tokens Traded\s*([\d,]+)`)
	tradePattern     = regexp.MustCompile(`\$([\d,]+(?:\.\d+)?)\s+([\d.]+)%`)
	holdTimePattern  = regexp.MustCompile(`(?i)Median Hold Time\s*(\d+)\s*(seconds?|minutes?|hours?|days?)`)
	unitMultipliers  = map[string]int64{"second": 1, "minute": 60, "hour": 3600, "day": 86400}
	thousandsReplace = strings.NewReplacer(",", "")
)

// PatternExtractor applies the regular-expression rules for the 30-day PnL page.
type PatternExtractor struct{}

// NewPatternExtractor creates a new PatternExtractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract builds WalletMetrics from page text.
func (e *PatternExtractor) Extract(address, text string, scrapedAt time.Time) domain.WalletMetrics {
	m := domain.EmptyMetrics(address, scrapedAt)

	if sol, usd, ok := parseBalance(text); ok {
		m.Balance = &sol
		m.BalanceUSD = &usd
	}
	m.IsInactive = m.Balance == nil || m.Balance.IsZero()

	if pnl, roi, ok := parsePnL(text); ok {
		m.RealizedPnL = pnl
		m.PnLKnown = true
		m.RealizedROI = roi
	}

	if wr, ok := parseWinRate(text); ok {
		m.WinRate = domain.KnownPercentage(wr)
	}

	m.TokensTraded = parseTokensTraded(text)

	if amount, pct, ok := parseBestTrade(text); ok {
		m.BestTrade = &amount
		m.BestTradePercentage = &pct
	}

	if hold, ok := parseHoldTime(text); ok {
		m.MedianHoldTime = &hold
	}

	return m
}

func parseBalance(text string) (domain.Money, domain.Money, bool) {
	match := balancePattern.FindStringSubmatch(text)
	if match == nil {
		return domain.Money{}, domain.Money{}, false
	}
	sol, err := parseAmount(match[1])
	if err != nil {
		return domain.Money{}, domain.Money{}, false
	}
	usd, err := parseAmount(match[2])
	if err != nil {
		return domain.Money{}, domain.Money{}, false
	}
	return domain.SOL(sol), domain.USD(usd), true
}

// parsePnL accepts "$1,234", "-$1,234", "$-1,234" and "+$1,234".
func parsePnL(text string) (domain.Money, *float64, bool) {
	match := pnlPattern.FindStringSubmatch(text)
	if match == nil {
		return domain.Money{}, nil, false
	}
	raw := match[1]
	negative := strings.Contains(raw, "-")
	digits := strings.NewReplacer("$", "", "-", "", "+", "").Replace(raw)
	amount, err := parseAmount(digits)
	if err != nil {
		return domain.Money{}, nil, false
	}
	if negative {
		amount = amount.Neg()
	}

	var roi *float64
	if v, err := strconv.ParseFloat(match[2], 64); err == nil {
		roi = &v
	}
	return domain.USD(amount), roi, true
}

func parseWinRate(text string) (float64, bool) {
	match := winRatePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTokensTraded(text string) int64 {
	match := tokensPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	v, err := strconv.ParseInt(thousandsReplace.Replace(match[1]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseBestTrade scans every "$<amount> <pct>%" occurrence and keeps the largest amount.
// Ties keep the first occurrence. Zero amounts are not trades.
func parseBestTrade(text string) (domain.Money, float64, bool) {
	var (
		best    decimal.Decimal
		bestPct float64
		found   bool
	)
	for _, match := range tradePattern.FindAllStringSubmatch(text, -1) {
		amount, err := parseAmount(match[1])
		if err != nil || !amount.IsPositive() {
			continue
		}
		pct, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		if !found || amount.GreaterThan(best) {
			best, bestPct, found = amount, pct, true
		}
	}
	if !found {
		return domain.Money{}, 0, false
	}
	return domain.USD(best), bestPct, true
}

func parseHoldTime(text string) (domain.HoldTime, bool) {
	match := holdTimePattern.FindStringSubmatch(text)
	if match == nil {
		return domain.HoldTime{}, false
	}
	value, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return domain.HoldTime{}, false
	}
	unit := strings.TrimSuffix(strings.ToLower(match[2]), "s")
	mult := unitMultipliers[unit]
	seconds := int64(math.MaxInt64)
	if value <= math.MaxInt64/mult {
		seconds = value * mult
	}
	return domain.HoldTime{
		Value:   value,
		Unit:    unit,
		Seconds: seconds,
	}, true
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(thousandsReplace.Replace(s))
}

var _ Extractor = (*PatternExtractor)(nil)
