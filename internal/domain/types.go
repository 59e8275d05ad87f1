// Package domain defines the core data types shared across the backtester:
// price bars, candidates, signals, trade results, and equity rows.
package domain

import "time"

// Market identifies the market a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
)

// Direction classifies a candidate's breakout side.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionSkip  Direction = "skip" // doji opening range, no trade
)

// ExitReason records how a simulated trade resolved.
type ExitReason string

const (
	ExitStop    ExitReason = "STOP"
	ExitTarget  ExitReason = "TARGET"
	ExitEOD     ExitReason = "EOD"
	ExitNoEntry ExitReason = "NO_ENTRY"
)

// SizingMode selects the position sizing rule.
type SizingMode string

const (
	SizingEqualDollar SizingMode = "equal_dollar"
	SizingFixedRisk   SizingMode = "fixed_risk"
)

// Compounding controls how the capital base advances across days.
type Compounding string

const (
	CompoundingNone   Compounding = "none"   // every day starts from the configured base
	CompoundingYearly Compounding = "yearly" // compounds within a calendar year, resets at year change
	CompoundingFull   Compounding = "full"   // compounds across the whole run
)

// Bar is a single OHLCV bar, daily or intraday. Bars are externally supplied,
// immutable, and ordered by timestamp within a symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// OpeningRange is the aggregated OHLCV of the configured opening window.
type OpeningRange struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
	Start  time.Time
	End    time.Time // exclusive
}

// Candidate is one symbol selected for a trading day after filtering and
// ranking. It is created once the opening window closes and never mutated.
type Candidate struct {
	Symbol    string
	Date      time.Time // midnight ET of the trading day
	OR        OpeningRange
	Direction Direction
	RVOL      float64
	Rank      int // 1-indexed by descending RVOL; unique within a date

	// Trailing statistics, computed strictly from bars before Date.
	ATR       float64
	AvgVolume float64
}

// Signal derives the entry and stop levels for a candidate. The trigger is
// the opening-range high (long) or low (short).
type Signal struct {
	Candidate    Candidate
	EntryTrigger float64
	StopPrice    float64
	TargetPrice  float64 // zero when no profit target is configured
}

// TradeResult is the immutable outcome of simulating one candidate. Exactly
// one exists per candidate: single entry, single exit, no re-entry.
type TradeResult struct {
	Signal     Signal
	Entered    bool
	EntryPrice float64
	EntryTime  time.Time
	ExitPrice  float64
	ExitTime   time.Time
	ExitReason ExitReason
	Shares     int64
	GrossPnL   float64
	Commission float64
	NetPnL     float64
}

// DailyEquity is one row of the daily performance table, written once at
// day-close and never revised.
type DailyEquity struct {
	Date           time.Time
	StartingEquity float64
	EndingEquity   float64
	DailyPnL       float64
	TradesEntered  int
	Wins           int
	Losses         int
}

// EquityPoint is one point of the run's equity curve.
type EquityPoint struct {
	Date   time.Time
	Equity float64
}
