package backtest

import (
	"math"

	"orbx/internal/domain"
)

// Sizer converts a detected entry into a share count. Candidates are sized
// in rank order: when the aggregate leverage cap runs out, lower-ranked
// candidates are the ones skipped.
type Sizer struct {
	Mode            domain.SizingMode
	TopN            int
	RiskPct         float64 // fraction of equity risked per trade (fixed_risk)
	LeverageCap     float64
	LiquidityCapPct float64 // max fraction of trailing average volume
}

// Shares returns the position size for one entry given the day's starting
// equity, the entry and stop prices, the symbol's trailing average volume,
// and the notional already committed to higher-ranked positions. A zero
// return means the candidate gets no capital.
func (s *Sizer) Shares(equity, entryPrice, stopDistance, avgVolume, openNotional float64) int64 {
	if entryPrice <= 0 {
		return 0
	}

	var base float64
	switch s.Mode {
	case domain.SizingFixedRisk:
		if stopDistance <= 0 {
			return 0
		}
		base = math.Floor((equity * s.RiskPct) / stopDistance)
	default: // equal dollar
		base = math.Floor((equity / float64(s.TopN)) * s.LeverageCap / entryPrice)
	}
	if base <= 0 {
		return 0
	}

	// Liquidity cap: never take more than a fraction of typical volume.
	if s.LiquidityCapPct > 0 {
		if liqCap := math.Floor(s.LiquidityCapPct * avgVolume); liqCap < base {
			base = liqCap
		}
	}

	// Aggregate leverage cap across concurrently open positions.
	room := math.Floor((equity*s.LeverageCap - openNotional) / entryPrice)
	if room < base {
		base = room
	}

	if base <= 0 {
		return 0
	}
	return int64(base)
}
