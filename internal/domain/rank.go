package domain

// RankLabel is a letter-grade bucket derived from a total score.
type RankLabel string

const (
	RankSPlus    RankLabel = "S+"
	RankS        RankLabel = "S"
	RankAPlus    RankLabel = "A+"
	RankA        RankLabel = "A"
	RankBPlus    RankLabel = "B+"
	RankB        RankLabel = "B"
	RankCPlus    RankLabel = "C+"
	RankC        RankLabel = "C"
	RankD        RankLabel = "D"
	RankF        RankLabel = "F"
	RankUnranked RankLabel = "Unranked"
)

// String returns the string representation of RankLabel.
func (l RankLabel) String() string {
	return string(l)
}

// ScoreComponents holds the per-factor contributions to a total score.
type ScoreComponents struct {
	PnL      float64 // [-35, 35]
	WinRate  float64 // unbounded, 0 at 40% winrate
	HoldTime float64 // [0, 20]
	Volume   float64 // [0, 10]
	Risk     float64 // [0, 10]
}

// Sum returns the unclamped total of all components.
func (c ScoreComponents) Sum() float64 {
	return c.PnL + c.WinRate + c.HoldTime + c.Volume + c.Risk
}

// RankScore is the composite score and label for a wallet.
type RankScore struct {
	Components ScoreComponents
	Total      float64
	Label      RankLabel
}

// UnrankedScore is the placeholder score for wallets whose page was unavailable.
func UnrankedScore() RankScore {
	return RankScore{Label: RankUnranked}
}
