package report

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"orbx/internal/domain"
)

func day(offset int) time.Time {
	return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestBuild(t *testing.T) {
	rows := []domain.DailyEquity{
		{Date: day(0), StartingEquity: 10_000, EndingEquity: 10_500, DailyPnL: 500, TradesEntered: 2, Wins: 2},
		{Date: day(1), StartingEquity: 10_500, EndingEquity: 10_300, DailyPnL: -200, TradesEntered: 1, Losses: 1},
		{Date: day(2), StartingEquity: 10_300, EndingEquity: 11_000, DailyPnL: 700, TradesEntered: 2, Wins: 1, Losses: 1},
	}
	curve := []domain.EquityPoint{
		{Date: day(0), Equity: 10_500},
		{Date: day(1), Equity: 10_300},
		{Date: day(2), Equity: 11_000},
	}

	s, err := Build("demo", rows, curve)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if s.TradesEntered != 5 || s.Wins != 3 || s.Losses != 2 {
		t.Errorf("counts = %d/%d/%d, want 5/3/2", s.TradesEntered, s.Wins, s.Losses)
	}
	if s.WinRate != 0.6 {
		t.Errorf("win rate = %v, want 0.6", s.WinRate)
	}
	if math.Abs(s.TotalReturn-0.1) > 1e-12 {
		t.Errorf("total return = %v, want 0.1", s.TotalReturn)
	}
	// Gains 1200 over losses 200.
	if s.ProfitFactor != 6.0 {
		t.Errorf("profit factor = %v, want 6.0", s.ProfitFactor)
	}
	// Peak 10500, trough 10300.
	wantDD := (10_500.0 - 10_300.0) / 10_500.0
	if math.Abs(s.MaxDrawdown-wantDD) > 1e-12 {
		t.Errorf("max drawdown = %v, want %v", s.MaxDrawdown, wantDD)
	}
	if s.CAGR <= 0 {
		t.Errorf("cagr = %v, want positive", s.CAGR)
	}
	if s.Sharpe <= 0 {
		t.Errorf("sharpe = %v, want positive", s.Sharpe)
	}
}

func TestBuildEmpty(t *testing.T) {
	if _, err := Build("demo", nil, nil); !errors.Is(err, ErrEmptyRun) {
		t.Fatalf("err = %v, want ErrEmptyRun", err)
	}
}

func TestBuildNoLosses(t *testing.T) {
	rows := []domain.DailyEquity{
		{Date: day(0), StartingEquity: 10_000, EndingEquity: 10_100, DailyPnL: 100, TradesEntered: 1, Wins: 1},
	}
	curve := []domain.EquityPoint{{Date: day(0), Equity: 10_100}}

	s, err := Build("demo", rows, curve)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !math.IsInf(s.ProfitFactor, 1) {
		t.Errorf("profit factor = %v, want +Inf", s.ProfitFactor)
	}
	if s.MaxDrawdown != 0 {
		t.Errorf("max drawdown = %v, want 0", s.MaxDrawdown)
	}
}

func TestRender(t *testing.T) {
	rows := []domain.DailyEquity{
		{Date: day(0), StartingEquity: 10_000, EndingEquity: 10_100, DailyPnL: 100, TradesEntered: 1, Wins: 1},
	}
	curve := []domain.EquityPoint{{Date: day(0), Equity: 10_100}}

	s, err := Build("demo", rows, curve)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := s.Render()
	for _, want := range []string{"run:", "demo", "total return:", "1.00%", "max drawdown:"} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}
