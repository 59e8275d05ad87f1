// Package store defines storage interfaces for price bars and run results,
// with Parquet-backed implementations for bulk data and a SQLite store for
// ad-hoc querying of finished runs.
package store

import (
	"context"
	"time"

	"orbx/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data at daily and intraday
// resolution. Historical bars never change mid-run, so implementations are
// free to memoize reads.
type BarStore interface {
	// WriteDailyBars persists a batch of daily bars.
	WriteDailyBars(ctx context.Context, bars []domain.Bar) error

	// WriteMinuteBars persists a batch of intraday bars.
	WriteMinuteBars(ctx context.Context, bars []domain.Bar) error

	// ReadDailyBars returns daily bars for the symbol within [start, end],
	// ascending by timestamp.
	ReadDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ReadMinuteBars returns all intraday bars for the symbol on the given
	// trading day, ascending by timestamp.
	ReadMinuteBars(ctx context.Context, symbol string, day time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with daily bar data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// ResultStore persists the three run outputs — trade ledger, daily
// performance table, and equity curve — as write-once datasets partitioned
// by run name.
type ResultStore interface {
	// WriteTrades writes the full trade ledger for a run. Fails if the run
	// already has a ledger.
	WriteTrades(ctx context.Context, run string, trades []domain.TradeResult) error

	// WriteDailyPerformance writes the daily performance table for a run.
	WriteDailyPerformance(ctx context.Context, run string, rows []domain.DailyEquity) error

	// WriteEquityCurve writes the ordered equity curve for a run.
	WriteEquityCurve(ctx context.Context, run string, points []domain.EquityPoint) error

	// ReadTrades returns the trade ledger of a finished run.
	ReadTrades(ctx context.Context, run string) ([]domain.TradeResult, error)

	// ReadDailyPerformance returns the daily performance table of a run.
	ReadDailyPerformance(ctx context.Context, run string) ([]domain.DailyEquity, error)

	// ReadEquityCurve returns the equity curve of a run, ascending by date.
	ReadEquityCurve(ctx context.Context, run string) ([]domain.EquityPoint, error)
}
