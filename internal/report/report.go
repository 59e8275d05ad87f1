// Package report computes summary performance metrics from a finished run's
// daily performance table and equity curve.
package report

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"orbx/internal/domain"
)

// ErrEmptyRun is returned when a run has no committed days to report on.
var ErrEmptyRun = errors.New("run has no daily rows")

// tradingDaysPerYear is the annualization base for daily-return statistics.
const tradingDaysPerYear = 252

// Summary is the full metric set for one run.
type Summary struct {
	Run string

	Days          int
	TradesEntered int
	Wins          int
	Losses        int

	StartingEquity float64
	FinalEquity    float64
	TotalReturn    float64 // fractional, 0.10 == +10%
	CAGR           float64
	Sharpe         float64
	MaxDrawdown    float64 // fractional, positive
	WinRate        float64
	ProfitFactor   float64 // +Inf when there are no losing days
}

// Build computes the summary for a run from its daily rows and equity curve.
// The curve, not the per-day sizing base, is the source of return and
// drawdown numbers, so non-compounding runs report correctly too.
func Build(run string, rows []domain.DailyEquity, curve []domain.EquityPoint) (*Summary, error) {
	if len(rows) == 0 || len(curve) == 0 {
		return nil, ErrEmptyRun
	}

	s := &Summary{Run: run, Days: len(rows)}
	for _, r := range rows {
		s.TradesEntered += r.TradesEntered
		s.Wins += r.Wins
		s.Losses += r.Losses
	}
	if s.Wins+s.Losses > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Wins+s.Losses)
	}

	// The curve holds end-of-day values; the run's base is day one's start.
	s.StartingEquity = rows[0].StartingEquity
	s.FinalEquity = curve[len(curve)-1].Equity
	if s.StartingEquity > 0 {
		s.TotalReturn = s.FinalEquity/s.StartingEquity - 1
	}

	s.CAGR = cagr(s.StartingEquity, s.FinalEquity, len(curve))
	s.Sharpe = sharpe(dailyReturns(s.StartingEquity, curve))
	s.MaxDrawdown = maxDrawdown(s.StartingEquity, curve)
	s.ProfitFactor = profitFactor(rows)
	return s, nil
}

// dailyReturns converts the equity curve into simple daily returns, with
// the run's starting equity as the base of the first day.
func dailyReturns(start float64, curve []domain.EquityPoint) []float64 {
	returns := make([]float64, 0, len(curve))
	prev := start
	for _, p := range curve {
		if prev > 0 {
			returns = append(returns, p.Equity/prev-1)
		}
		prev = p.Equity
	}
	return returns
}

func cagr(start, final float64, days int) float64 {
	if start <= 0 || final <= 0 || days == 0 {
		return 0
	}
	years := float64(days) / tradingDaysPerYear
	return math.Pow(final/start, 1/years) - 1
}

// sharpe is the annualized Sharpe ratio of the daily return series, zero
// risk-free rate. A flat series has no defined ratio and reports zero.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown is the largest peak-to-trough decline over the curve,
// expressed as a positive fraction of the peak.
func maxDrawdown(start float64, curve []domain.EquityPoint) float64 {
	peak := start
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// profitFactor is gross winning-day P&L over gross losing-day P&L.
func profitFactor(rows []domain.DailyEquity) float64 {
	var gains, losses float64
	for _, r := range rows {
		if r.DailyPnL > 0 {
			gains += r.DailyPnL
		} else {
			losses -= r.DailyPnL
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return gains / losses
}

// Render formats the summary as an aligned plain-text block.
func (s *Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run:             %s\n", s.Run)
	fmt.Fprintf(&b, "trading days:    %d\n", s.Days)
	fmt.Fprintf(&b, "trades entered:  %d (%d wins, %d losses)\n", s.TradesEntered, s.Wins, s.Losses)
	fmt.Fprintf(&b, "starting equity: %.2f\n", s.StartingEquity)
	fmt.Fprintf(&b, "final equity:    %.2f\n", s.FinalEquity)
	fmt.Fprintf(&b, "total return:    %.2f%%\n", s.TotalReturn*100)
	fmt.Fprintf(&b, "cagr:            %.2f%%\n", s.CAGR*100)
	fmt.Fprintf(&b, "sharpe:          %.2f\n", s.Sharpe)
	fmt.Fprintf(&b, "max drawdown:    %.2f%%\n", s.MaxDrawdown*100)
	fmt.Fprintf(&b, "win rate:        %.2f%%\n", s.WinRate*100)
	fmt.Fprintf(&b, "profit factor:   %.2f\n", s.ProfitFactor)
	return b.String()
}
