package backtest

import (
	"errors"
	"testing"

	"orbx/internal/domain"
)

func TestRVOL(t *testing.T) {
	history := []float64{1000, 2000, 3000} // mean 2000
	got, err := RVOL(5000, history)
	if err != nil {
		t.Fatalf("RVOL: %v", err)
	}
	if got != 2.5 {
		t.Errorf("rvol = %v, want 2.5", got)
	}
}

func TestRVOLEmptyHistory(t *testing.T) {
	if _, err := RVOL(5000, nil); !errors.Is(err, ErrInsufficientRVOLHistory) {
		t.Fatalf("err = %v, want ErrInsufficientRVOLHistory", err)
	}
}

func TestRVOLZeroMean(t *testing.T) {
	if _, err := RVOL(5000, []float64{0, 0, 0}); !errors.Is(err, ErrInsufficientRVOLHistory) {
		t.Fatalf("err = %v, want ErrInsufficientRVOLHistory", err)
	}
}

func TestRankByRVOL(t *testing.T) {
	cands := []domain.Candidate{
		{Symbol: "AAA", RVOL: 1.2},
		{Symbol: "BBB", RVOL: 3.0},
		{Symbol: "CCC", RVOL: 0.8}, // below floor
		{Symbol: "DDD", RVOL: 3.0}, // ties BBB, loses on symbol order
		{Symbol: "EEE", RVOL: 2.1},
	}

	ranked := RankByRVOL(cands, 1.0, 3)

	want := []string{"BBB", "DDD", "EEE"}
	if len(ranked) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(ranked), len(want))
	}
	for i, sym := range want {
		if ranked[i].Symbol != sym {
			t.Errorf("rank %d = %s, want %s", i+1, ranked[i].Symbol, sym)
		}
		if ranked[i].Rank != i+1 {
			t.Errorf("%s rank = %d, want %d", ranked[i].Symbol, ranked[i].Rank, i+1)
		}
	}
}

func TestRankByRVOLBoundaryEqualsFloor(t *testing.T) {
	// RVOL exactly at the floor is included.
	ranked := RankByRVOL([]domain.Candidate{{Symbol: "AAA", RVOL: 1.5}}, 1.5, 10)
	if len(ranked) != 1 {
		t.Fatalf("got %d candidates, want 1", len(ranked))
	}
}

func TestRankByRVOLEmpty(t *testing.T) {
	if got := RankByRVOL(nil, 1.0, 5); len(got) != 0 {
		t.Fatalf("got %d candidates, want 0", len(got))
	}
}
