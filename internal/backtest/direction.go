package backtest

import "orbx/internal/domain"

// Classify assigns the breakout side from the opening range: long when it
// closed above its open, short when below, skip on a doji (exact equality).
func Classify(or domain.OpeningRange) domain.Direction {
	switch {
	case or.Close > or.Open:
		return domain.DirectionLong
	case or.Close < or.Open:
		return domain.DirectionShort
	default:
		return domain.DirectionSkip
	}
}

// DirectionAllowed reports whether a run configured as long-only or
// short-only admits the classified direction. Skip is never allowed.
func DirectionAllowed(dir domain.Direction, filter string) bool {
	switch dir {
	case domain.DirectionLong:
		return filter == "both" || filter == "long"
	case domain.DirectionShort:
		return filter == "both" || filter == "short"
	default:
		return false
	}
}
