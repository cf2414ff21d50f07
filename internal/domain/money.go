package domain

import "github.com/shopspring/decimal"

// Currency codes used by scraped amounts.
const (
	CurrencySOL = "SOL"
	CurrencyUSD = "USD"
)

// Money is a signed decimal amount in a currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string // SOL | USD
}

// USD returns a Money in US dollars.
func USD(amount decimal.Decimal) Money {
	return Money{Amount: amount, Currency: CurrencyUSD}
}

// SOL returns a Money in SOL.
func SOL(amount decimal.Decimal) Money {
	return Money{Amount: amount, Currency: CurrencySOL}
}

// Float64 returns the amount as float64 for scoring.
func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Percentage is a 0-100 value that may be unknown.
type Percentage struct {
	Value float64
	Known bool
}

// KnownPercentage returns a known percentage.
func KnownPercentage(v float64) Percentage {
	return Percentage{Value: v, Known: true}
}

// OrZero returns the value, or 0 when unknown.
func (p Percentage) OrZero() float64 {
	if !p.Known {
		return 0
	}
	return p.Value
}
