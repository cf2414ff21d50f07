package extract

import (
	"math/rand"
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scrapedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const profilePage = `
Profile
Balance: 1,234.5 SOL ($215,000)
Realized PnL (ROI) -$12,345 (-8.5%)
Token Winrate 52.3%
Tokens Traded 1,250
Median Hold Time 5 Minutes
Top trades
BONK $100 5%
WIF $9,000 2%
POPCAT $250 40%
`

func TestExtract_FullPage(t *testing.T) {
	m := NewPatternExtractor().Extract("addr1", profilePage, scrapedAt)

	require.NotNil(t, m.Balance)
	assert.True(t, m.Balance.Amount.Equal(decimal.RequireFromString("1234.5")))
	require.NotNil(t, m.BalanceUSD)
	assert.True(t, m.BalanceUSD.Amount.Equal(decimal.NewFromInt(215000)))
	assert.False(t, m.IsInactive)

	assert.True(t, m.PnLKnown)
	assert.True(t, m.RealizedPnL.Amount.Equal(decimal.NewFromInt(-12345)))
	require.NotNil(t, m.RealizedROI)
	assert.Equal(t, -8.5, *m.RealizedROI)

	assert.True(t, m.WinRate.Known)
	assert.Equal(t, 52.3, m.WinRate.Value)
	assert.Equal(t, int64(1250), m.TokensTraded)

	require.NotNil(t, m.MedianHoldTime)
	assert.Equal(t, int64(5), m.MedianHoldTime.Value)
	assert.Equal(t, "minute", m.MedianHoldTime.Unit)
	assert.Equal(t, int64(300), m.MedianHoldTime.Seconds)

	assert.Equal(t, "addr1", m.Address)
	assert.Equal(t, "30d", m.Window)
	assert.Equal(t, scrapedAt, m.ScrapedAt)
}

func TestExtract_BestTradeIsMaxByAmount(t *testing.T) {
	text := "$100 5%\n$9,000 2%\n$250 40%"

	m := NewPatternExtractor().Extract("addr", text, scrapedAt)

	require.NotNil(t, m.BestTrade)
	assert.True(t, m.BestTrade.Amount.Equal(decimal.NewFromInt(9000)))
	require.NotNil(t, m.BestTradePercentage)
	assert.Equal(t, 2.0, *m.BestTradePercentage)
}

func TestExtract_BestTradeUnboundedRows(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 500; i++ {
		b.WriteString("$")
		b.WriteString(decimal.NewFromInt(int64(i * 10)).String())
		b.WriteString(" 1%\n")
	}
	b.WriteString("$1,000,000 3.5%\n")

	m := NewPatternExtractor().Extract("addr", b.String(), scrapedAt)

	require.NotNil(t, m.BestTrade)
	assert.True(t, m.BestTrade.Amount.Equal(decimal.NewFromInt(1_000_000)))
	assert.Equal(t, 3.5, *m.BestTradePercentage)
}

func TestExtract_PnLSignPlacements(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"Realized PnL (ROI) $5,000 (12%)", 5000},
		{"Realized PnL (ROI) +$5,000 (12%)", 5000},
		{"Realized PnL (ROI) -$5,000 (-12%)", -5000},
		{"Realized PnL (ROI) $-5,000 (-12%)", -5000},
	}

	for _, tt := range tests {
		m := NewPatternExtractor().Extract("addr", tt.text, scrapedAt)
		assert.True(t, m.PnLKnown, tt.text)
		assert.True(t, m.RealizedPnL.Amount.Equal(decimal.NewFromInt(tt.want)), tt.text)
	}
}

func TestExtract_HoldTimeUnits(t *testing.T) {
	tests := []struct {
		text    string
		seconds int64
		unit    string
	}{
		{"Median Hold Time 45 seconds", 45, "second"},
		{"Median Hold Time 1 second", 1, "second"},
		{"median hold time 2 HOURS", 7200, "hour"},
		{"Median Hold Time 3 days", 259200, "day"},
	}

	for _, tt := range tests {
		m := NewPatternExtractor().Extract("addr", tt.text, scrapedAt)
		if assert.NotNil(t, m.MedianHoldTime, tt.text) {
			assert.Equal(t, tt.seconds, m.MedianHoldTime.Seconds, tt.text)
			assert.Equal(t, tt.unit, m.MedianHoldTime.Unit, tt.text)
		}
	}
}

func TestExtract_InactiveWallet(t *testing.T) {
	m := NewPatternExtractor().Extract("addr", "Token Winrate 60.0%", scrapedAt)

	assert.Nil(t, m.Balance)
	assert.True(t, m.IsInactive)
	assert.False(t, m.PnLKnown)
	assert.True(t, m.RealizedPnL.Amount.IsZero())
	assert.True(t, m.WinRate.Known)
}

func TestExtract_ZeroBalanceIsInactive(t *testing.T) {
	m := NewPatternExtractor().Extract("addr", "Balance: 0 SOL ($0)", scrapedAt)

	require.NotNil(t, m.Balance)
	assert.True(t, m.IsInactive)
}

func TestExtract_EmptyText(t *testing.T) {
	m := NewPatternExtractor().Extract("addr", "", scrapedAt)

	assert.Nil(t, m.Balance)
	assert.Nil(t, m.BalanceUSD)
	assert.True(t, m.IsInactive)
	assert.False(t, m.PnLKnown)
	assert.Nil(t, m.RealizedROI)
	assert.False(t, m.WinRate.Known)
	assert.Zero(t, m.TokensTraded)
	assert.Nil(t, m.BestTrade)
	assert.Nil(t, m.BestTradePercentage)
	assert.Nil(t, m.MedianHoldTime)
}

func TestExtract_NeverPanicsOnArbitraryText(t *testing.T) {
	alphabet := []string{"$", "%", ",", ".", "-", "+", " ", "\n", "0", "9", "SOL", "(", ")",
		"Balance:", "Realized PnL (ROI)", "Token Winrate", "Tokens Traded", "Median Hold Time", "days"}
	r := rand.New(rand.NewSource(42))

	f := func(n uint8) bool {
		var b strings.Builder
		for i := 0; i < int(n); i++ {
			b.WriteString(alphabet[r.Intn(len(alphabet))])
		}
		m := NewPatternExtractor().Extract("addr", b.String(), scrapedAt)
		return m.Address == "addr" && m.IsInactive == (m.Balance == nil || m.Balance.IsZero())
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}
}

func FuzzExtract(f *testing.F) {
	f.Add(profilePage)
	f.Add("")
	f.Add("$99999999999999999999999 1.2.3%")
	f.Add("Median Hold Time 99999999999999999 days")
	f.Fuzz(func(t *testing.T, text string) {
		m := NewPatternExtractor().Extract("addr", text, scrapedAt)
		if m.MedianHoldTime != nil && m.MedianHoldTime.Seconds < 0 {
			t.Fatalf("negative hold seconds for %q", text)
		}
	})
}
