package backtest

import (
	"time"

	"orbx/internal/domain"
)

// TieBreak resolves the genuinely ambiguous case where a single bar's range
// covers both the stop and the profit target. Without tick data the true
// ordering is unknowable; stop-first is the conservative default and the
// policy is explicit run configuration, never an implicit branch.
type TieBreak string

const (
	TieBreakStopFirst   TieBreak = "stop_first"
	TieBreakTargetFirst TieBreak = "target_first"
)

// SimulatorConfig holds the trade mechanics parameters. BarResolution is an
// explicit run parameter: coarser bars make breach detection approximate,
// and the simulator stays conservative about what happened inside a bar.
type SimulatorConfig struct {
	StopATRScale   float64
	TargetATRScale float64 // 0 disables the profit target
	TieBreak       TieBreak
	BarResolution  time.Duration
}

// BuildSignal derives entry and exit levels for a candidate. The entry
// trigger is the opening-range high (long) or low (short); the stop sits
// StopATRScale ATRs beyond the trigger on the adverse side. A long stop at
// or below zero can never fill, so such candidates are rejected: ok is
// false and the signal must not be traded.
func BuildSignal(c domain.Candidate, cfg SimulatorConfig) (domain.Signal, bool) {
	sig := domain.Signal{Candidate: c}
	switch c.Direction {
	case domain.DirectionLong:
		sig.EntryTrigger = c.OR.High
		sig.StopPrice = sig.EntryTrigger - cfg.StopATRScale*c.ATR
		if cfg.TargetATRScale > 0 {
			sig.TargetPrice = sig.EntryTrigger + cfg.TargetATRScale*c.ATR
		}
	case domain.DirectionShort:
		sig.EntryTrigger = c.OR.Low
		sig.StopPrice = sig.EntryTrigger + cfg.StopATRScale*c.ATR
		if cfg.TargetATRScale > 0 {
			sig.TargetPrice = sig.EntryTrigger - cfg.TargetATRScale*c.ATR
		}
	}
	if sig.StopPrice <= 0 {
		return sig, false
	}
	return sig, true
}

// simState is the per-candidate state machine.
type simState int

const (
	waitingForTrigger simState = iota
	positionOpen
	closed
)

// Simulate walks the post-window intraday bars for one candidate and
// resolves the trade: breakout entry at the trigger price, ATR-scaled stop,
// optional profit target, EOD exit at session close. Shares and P&L are
// zero here; sizing and costing happen after, in rank order.
//
// Detection is bar-granular: a bar whose high reaches the trigger enters at
// the trigger price (not the bar close), and a bar whose range touches the
// stop exits at the stop price. When one bar could satisfy both stop and
// target, cfg.TieBreak decides; on the entry bar itself the stop is also
// checked, since the adverse move may have happened first within the bar.
func Simulate(sig domain.Signal, bars []domain.Bar, sessionClose time.Time, cfg SimulatorConfig) domain.TradeResult {
	t := domain.TradeResult{Signal: sig, ExitReason: domain.ExitNoEntry}
	long := sig.Candidate.Direction == domain.DirectionLong

	state := waitingForTrigger
	for _, b := range bars {
		if b.Timestamp.After(sessionClose) {
			break
		}

		switch state {
		case waitingForTrigger:
			triggered := (long && b.High >= sig.EntryTrigger) || (!long && b.Low <= sig.EntryTrigger)
			if !triggered {
				continue
			}
			t.Entered = true
			t.EntryPrice = sig.EntryTrigger
			t.EntryTime = b.Timestamp
			state = positionOpen

			// The entry bar can also resolve the exit. Intrabar ordering is
			// unknowable, so the exit time is pinned to the bar's end to keep
			// entry strictly before exit.
			if reason, price, hit := checkExit(sig, b, long, cfg.TieBreak); hit {
				t.ExitReason = reason
				t.ExitPrice = price
				t.ExitTime = b.Timestamp.Add(cfg.BarResolution)
				state = closed
			}

		case positionOpen:
			if reason, price, hit := checkExit(sig, b, long, cfg.TieBreak); hit {
				t.ExitReason = reason
				t.ExitPrice = price
				t.ExitTime = b.Timestamp
				state = closed
			}
		}

		if state == closed {
			break
		}
	}

	// Open at the bell: exit at session close on the last bar's close.
	if state == positionOpen {
		last := lastSessionBar(bars, sessionClose)
		t.ExitReason = domain.ExitEOD
		t.ExitPrice = last.Close
		t.ExitTime = sessionClose
	}

	return t
}

// checkExit tests one bar for stop and target breaches and applies the
// tie-break when both could have filled.
func checkExit(sig domain.Signal, b domain.Bar, long bool, tie TieBreak) (domain.ExitReason, float64, bool) {
	var stopHit, targetHit bool
	if long {
		stopHit = b.Low <= sig.StopPrice
		targetHit = sig.TargetPrice > 0 && b.High >= sig.TargetPrice
	} else {
		stopHit = b.High >= sig.StopPrice
		targetHit = sig.TargetPrice > 0 && b.Low <= sig.TargetPrice
	}

	switch {
	case stopHit && targetHit:
		if tie == TieBreakTargetFirst {
			return domain.ExitTarget, sig.TargetPrice, true
		}
		return domain.ExitStop, sig.StopPrice, true
	case stopHit:
		return domain.ExitStop, sig.StopPrice, true
	case targetHit:
		return domain.ExitTarget, sig.TargetPrice, true
	default:
		return "", 0, false
	}
}

// lastSessionBar returns the final bar at or before the session close.
func lastSessionBar(bars []domain.Bar, sessionClose time.Time) domain.Bar {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Timestamp.After(sessionClose) {
			return bars[i]
		}
	}
	return bars[len(bars)-1]
}
