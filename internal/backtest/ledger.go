package backtest

import (
	"time"

	"orbx/internal/domain"
	"orbx/internal/util"
)

// Ledger owns the run's capital state. Nothing else mutates equity: worker
// results are pure values and the ledger applies them in one commit per day,
// all-or-nothing, after every candidate for the day has resolved.
type Ledger struct {
	mode domain.Compounding
	base float64

	sizingEquity float64 // capital base for the next day's sizing
	accountValue float64 // cumulative account value for the equity curve
	currentYear  int

	rows  []domain.DailyEquity
	curve []domain.EquityPoint
}

// NewLedger creates a ledger starting from the configured initial capital.
func NewLedger(initial float64, mode domain.Compounding) *Ledger {
	return &Ledger{
		mode:         mode,
		base:         initial,
		sizingEquity: initial,
		accountValue: initial,
	}
}

// StartingEquity returns the capital base for sizing on the given day,
// applying the compounding rule. Under yearly compounding the base resets
// to the configured initial capital at each calendar-year boundary.
func (l *Ledger) StartingEquity(date time.Time) float64 {
	switch l.mode {
	case domain.CompoundingNone:
		return l.base
	case domain.CompoundingYearly:
		year := date.In(util.Eastern()).Year()
		if l.currentYear != 0 && year != l.currentYear {
			l.sizingEquity = l.base
		}
		l.currentYear = year
		return l.sizingEquity
	default: // full
		return l.sizingEquity
	}
}

// Commit closes a trading day: sums the day's net P&L (order-independent),
// appends one immutable DailyEquity row and one equity curve point, and
// advances the capital base for the next day. It must be called exactly
// once per day, with the complete trade set.
func (l *Ledger) Commit(date time.Time, trades []domain.TradeResult) domain.DailyEquity {
	starting := l.StartingEquity(date)

	var pnl float64
	var entered, wins, losses int
	for _, t := range trades {
		if !t.Entered {
			continue
		}
		entered++
		pnl += t.NetPnL
		switch {
		case t.NetPnL > 0:
			wins++
		case t.NetPnL < 0:
			losses++
		}
	}

	row := domain.DailyEquity{
		Date:           date,
		StartingEquity: starting,
		EndingEquity:   starting + pnl,
		DailyPnL:       pnl,
		TradesEntered:  entered,
		Wins:           wins,
		Losses:         losses,
	}
	l.rows = append(l.rows, row)

	// The equity curve tracks cumulative account value regardless of the
	// sizing base, so non-compounding runs still produce a meaningful curve.
	l.accountValue += pnl
	l.curve = append(l.curve, domain.EquityPoint{Date: date, Equity: l.accountValue})

	l.sizingEquity = row.EndingEquity
	return row
}

// Rows returns the daily performance table accumulated so far.
func (l *Ledger) Rows() []domain.DailyEquity {
	return l.rows
}

// Curve returns the equity curve accumulated so far.
func (l *Ledger) Curve() []domain.EquityPoint {
	return l.curve
}

// FinalEquity returns the current cumulative account value.
func (l *Ledger) FinalEquity() float64 {
	return l.accountValue
}
