// Package backtest implements the opening range breakout simulation engine:
// per-day candidate construction (opening range, relative volume ranking,
// direction classification), the per-candidate trade state machine, position
// sizing under leverage and liquidity caps, commission costing, and the
// portfolio ledger that advances capital day by day.
package backtest

import (
	"fmt"
	"time"

	"orbx/internal/domain"
)

// ComputeOpeningRange aggregates the intraday bars falling inside the
// opening window [start, end) into a single OHLCV. expectedBars is the bar
// count a complete window holds at the run's resolution; fewer bars mark the
// opening range invalid for the day — missing data is never assumed flat.
func ComputeOpeningRange(bars []domain.Bar, start, end time.Time, expectedBars int) (domain.OpeningRange, error) {
	var window []domain.Bar
	for _, b := range bars {
		if !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
			window = append(window, b)
		}
	}

	if len(window) == 0 {
		return domain.OpeningRange{}, ErrNoOpeningRange
	}
	if len(window) < expectedBars {
		return domain.OpeningRange{}, fmt.Errorf("opening window has %d of %d bars: %w",
			len(window), expectedBars, ErrNoOpeningRange)
	}

	or := domain.OpeningRange{
		Open:  window[0].Open,
		High:  window[0].High,
		Low:   window[0].Low,
		Close: window[len(window)-1].Close,
		Start: start,
		End:   end,
	}
	for _, b := range window {
		if b.High > or.High {
			or.High = b.High
		}
		if b.Low < or.Low {
			or.Low = b.Low
		}
		or.Volume += b.Volume
	}
	return or, nil
}
