package backtest

import (
	"fmt"
	"sort"

	"orbx/internal/domain"
	"orbx/internal/stats"
)

// RVOL computes relative volume: today's opening-window volume over the mean
// of the prior valid opening-window volumes. Days without a valid opening
// range are skipped by the caller and never appear in history as zeros.
func RVOL(orVolume int64, history []float64) (float64, error) {
	mean, err := stats.Mean(history)
	if err != nil {
		return 0, fmt.Errorf("rvol history: %w", ErrInsufficientRVOLHistory)
	}
	if mean <= 0 {
		return 0, fmt.Errorf("rvol history mean %v: %w", mean, ErrInsufficientRVOLHistory)
	}
	return float64(orVolume) / mean, nil
}

// RankByRVOL drops candidates below the RVOL floor, sorts the survivors by
// descending RVOL with ties broken by symbol lexical order, truncates to
// topN, and assigns 1-indexed ranks. Rank order is also capital-allocation
// priority downstream.
func RankByRVOL(cands []domain.Candidate, rvolFloor float64, topN int) []domain.Candidate {
	ranked := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.RVOL >= rvolFloor {
			ranked = append(ranked, c)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].RVOL != ranked[j].RVOL {
			return ranked[i].RVOL > ranked[j].RVOL
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
