package backtest

import (
	"testing"

	"orbx/internal/domain"
)

func TestSharesEqualDollar(t *testing.T) {
	s := &Sizer{Mode: domain.SizingEqualDollar, TopN: 5, LeverageCap: 1.0, LiquidityCapPct: 1.0}

	// 100k equity / 5 slots = 20k per slot at 50/share = 400 shares.
	got := s.Shares(100_000, 50, 2, 1_000_000, 0)
	if got != 400 {
		t.Errorf("shares = %d, want 400", got)
	}
}

func TestSharesFixedRisk(t *testing.T) {
	s := &Sizer{Mode: domain.SizingFixedRisk, TopN: 5, RiskPct: 0.01, LeverageCap: 2.0, LiquidityCapPct: 1.0}

	// 1% of 100k = 1000 risked over a $2 stop distance = 500 shares.
	got := s.Shares(100_000, 50, 2, 1_000_000, 0)
	if got != 500 {
		t.Errorf("shares = %d, want 500", got)
	}

	// Zero stop distance can never size a fixed-risk position.
	if got := s.Shares(100_000, 50, 0, 1_000_000, 0); got != 0 {
		t.Errorf("shares with zero stop distance = %d, want 0", got)
	}
}

func TestSharesLiquidityCap(t *testing.T) {
	s := &Sizer{Mode: domain.SizingEqualDollar, TopN: 1, LeverageCap: 1.0, LiquidityCapPct: 0.01}

	// Slot allows 2000 shares, but 1% of 50k average volume caps at 500.
	got := s.Shares(100_000, 50, 2, 50_000, 0)
	if got != 500 {
		t.Errorf("shares = %d, want 500", got)
	}
}

func TestSharesLeverageRoom(t *testing.T) {
	s := &Sizer{Mode: domain.SizingEqualDollar, TopN: 2, LeverageCap: 1.0, LiquidityCapPct: 1.0}

	// Higher-ranked positions already hold 90k of a 100k cap: only 10k of
	// room remains, 200 shares at 50.
	got := s.Shares(100_000, 50, 2, 1_000_000, 90_000)
	if got != 200 {
		t.Errorf("shares = %d, want 200", got)
	}

	// No room at all: the candidate is skipped entirely.
	if got := s.Shares(100_000, 50, 2, 1_000_000, 100_000); got != 0 {
		t.Errorf("shares with exhausted cap = %d, want 0", got)
	}
}

func TestSharesSubSlotPrice(t *testing.T) {
	s := &Sizer{Mode: domain.SizingEqualDollar, TopN: 10, LeverageCap: 1.0, LiquidityCapPct: 1.0}

	// Slot of $100 cannot afford a single $150 share.
	if got := s.Shares(1000, 150, 2, 1_000_000, 0); got != 0 {
		t.Errorf("shares = %d, want 0", got)
	}
}
