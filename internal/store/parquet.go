package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"orbx/internal/domain"
	"orbx/internal/util"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ ResultStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and ResultStore using Parquet files on
// disk under a single data directory.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily and intraday bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// LedgerRecord is the Parquet schema for one trade ledger row. It carries
// enough context (rank, RVOL, ATR, stop) for downstream reporting without
// re-deriving anything from bars.
type LedgerRecord struct {
	Symbol       string  `parquet:"symbol"`
	Date         string  `parquet:"date"` // YYYY-MM-DD ET
	Direction    string  `parquet:"direction"`
	Rank         int32   `parquet:"rank"`
	RVOL         float64 `parquet:"rvol"`
	ATR          float64 `parquet:"atr"`
	OROpen       float64 `parquet:"or_open"`
	ORHigh       float64 `parquet:"or_high"`
	ORLow        float64 `parquet:"or_low"`
	ORClose      float64 `parquet:"or_close"`
	ORVolume     int64   `parquet:"or_volume"`
	EntryTrigger float64 `parquet:"entry_trigger"`
	StopPrice    float64 `parquet:"stop_price"`
	TargetPrice  float64 `parquet:"target_price"`
	Entered      bool    `parquet:"entered"`
	EntryPrice   float64 `parquet:"entry_price"`
	EntryTime    int64   `parquet:"entry_time,timestamp(millisecond)"`
	ExitPrice    float64 `parquet:"exit_price"`
	ExitTime     int64   `parquet:"exit_time,timestamp(millisecond)"`
	ExitReason   string  `parquet:"exit_reason"`
	Shares       int64   `parquet:"shares"`
	GrossPnL     float64 `parquet:"gross_pnl"`
	Commission   float64 `parquet:"commission"`
	NetPnL       float64 `parquet:"net_pnl"`
}

// DailyPerfRecord is the Parquet schema for one daily performance row.
type DailyPerfRecord struct {
	Date           string  `parquet:"date"`
	StartingEquity float64 `parquet:"starting_equity"`
	EndingEquity   float64 `parquet:"ending_equity"`
	DailyPnL       float64 `parquet:"daily_pnl"`
	TradesEntered  int32   `parquet:"trades_entered"`
	Wins           int32   `parquet:"wins"`
	Losses         int32   `parquet:"losses"`
}

// EquityRecord is the Parquet schema for one equity curve point.
type EquityRecord struct {
	Date   string  `parquet:"date"`
	Equity float64 `parquet:"equity"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteDailyBars writes daily bars grouped by symbol and year:
//
//	<DataDir>/us/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteDailyBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Timestamp.Year()}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		path := s.dailyPath(k.symbol, k.year)

		// Merge with whatever the file already holds.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing daily bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// WriteMinuteBars writes intraday bars grouped by symbol and trading day:
//
//	<DataDir>/us/minute/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteMinuteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		date   string
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, date: util.DateKey(b.Timestamp)}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		path := s.minutePath(k.symbol, k.date)

		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing minute bars for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadDailyBars reads daily bars for the given symbol within [start, end].
func (s *ParquetStore) ReadDailyBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[BarRecord](s.dailyPath(symbol, year))
		if errors.Is(err, fs.ErrNotExist) {
			// No file for this year.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", s.dailyPath(symbol, year), err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if !ts.Before(start) && !ts.After(end) {
				bars = append(bars, fromBarRecord(r))
			}
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// ReadMinuteBars reads all intraday bars for the symbol on the given trading
// day, ascending by timestamp.
func (s *ParquetStore) ReadMinuteBars(_ context.Context, symbol string, day time.Time) ([]domain.Bar, error) {
	records, err := readParquetFile[BarRecord](s.minutePath(symbol, util.DateKey(day)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, fromBarRecord(r))
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// ListSymbols lists all symbols that have daily bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(domain.MarketUS), "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// ResultStore implementation
// ---------------------------------------------------------------------------

// WriteTrades writes the full trade ledger for a run as a single write-once
// Parquet file under <DataDir>/runs/<run>/trades.parquet.
func (s *ParquetStore) WriteTrades(_ context.Context, run string, trades []domain.TradeResult) error {
	records := make([]LedgerRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, toLedgerRecord(t))
	}
	return writeRunFile(s.runPath(run, "trades.parquet"), records)
}

// WriteDailyPerformance writes the daily performance table for a run.
func (s *ParquetStore) WriteDailyPerformance(_ context.Context, run string, rows []domain.DailyEquity) error {
	records := make([]DailyPerfRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, DailyPerfRecord{
			Date:           util.DateKey(r.Date),
			StartingEquity: r.StartingEquity,
			EndingEquity:   r.EndingEquity,
			DailyPnL:       r.DailyPnL,
			TradesEntered:  int32(r.TradesEntered),
			Wins:           int32(r.Wins),
			Losses:         int32(r.Losses),
		})
	}
	return writeRunFile(s.runPath(run, "daily.parquet"), records)
}

// WriteEquityCurve writes the ordered equity curve for a run.
func (s *ParquetStore) WriteEquityCurve(_ context.Context, run string, points []domain.EquityPoint) error {
	records := make([]EquityRecord, 0, len(points))
	for _, p := range points {
		records = append(records, EquityRecord{Date: util.DateKey(p.Date), Equity: p.Equity})
	}
	return writeRunFile(s.runPath(run, "equity.parquet"), records)
}

// ReadTrades returns the trade ledger of a finished run.
func (s *ParquetStore) ReadTrades(_ context.Context, run string) ([]domain.TradeResult, error) {
	records, err := readParquetFile[LedgerRecord](s.runPath(run, "trades.parquet"))
	if err != nil {
		return nil, fmt.Errorf("reading trade ledger for run %q: %w", run, err)
	}
	trades := make([]domain.TradeResult, 0, len(records))
	for _, r := range records {
		t, err := fromLedgerRecord(r)
		if err != nil {
			return nil, fmt.Errorf("run %q: %w", run, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// ReadDailyPerformance returns the daily performance table of a run.
func (s *ParquetStore) ReadDailyPerformance(_ context.Context, run string) ([]domain.DailyEquity, error) {
	records, err := readParquetFile[DailyPerfRecord](s.runPath(run, "daily.parquet"))
	if err != nil {
		return nil, fmt.Errorf("reading daily performance for run %q: %w", run, err)
	}
	rows := make([]domain.DailyEquity, 0, len(records))
	for _, r := range records {
		date, perr := time.ParseInLocation("2006-01-02", r.Date, util.Eastern())
		if perr != nil {
			return nil, fmt.Errorf("parsing date %q in run %q: %w", r.Date, run, perr)
		}
		rows = append(rows, domain.DailyEquity{
			Date:           date,
			StartingEquity: r.StartingEquity,
			EndingEquity:   r.EndingEquity,
			DailyPnL:       r.DailyPnL,
			TradesEntered:  int(r.TradesEntered),
			Wins:           int(r.Wins),
			Losses:         int(r.Losses),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

// ReadEquityCurve returns the equity curve of a run, ascending by date.
func (s *ParquetStore) ReadEquityCurve(_ context.Context, run string) ([]domain.EquityPoint, error) {
	records, err := readParquetFile[EquityRecord](s.runPath(run, "equity.parquet"))
	if err != nil {
		return nil, fmt.Errorf("reading equity curve for run %q: %w", run, err)
	}
	points := make([]domain.EquityPoint, 0, len(records))
	for _, r := range records {
		date, perr := time.ParseInLocation("2006-01-02", r.Date, util.Eastern())
		if perr != nil {
			return nil, fmt.Errorf("parsing date %q in run %q: %w", r.Date, run, perr)
		}
		points = append(points, domain.EquityPoint{Date: date, Equity: r.Equity})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) dailyPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, string(domain.MarketUS), "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func (s *ParquetStore) minutePath(symbol, date string) string {
	return filepath.Join(s.DataDir, string(domain.MarketUS), "minute", strings.ToUpper(symbol), date+".parquet")
}

func (s *ParquetStore) runPath(run, file string) string {
	return filepath.Join(s.DataDir, "runs", run, file)
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// writeRunFile refuses to overwrite: run outputs are write-once per run.
func writeRunFile[T any](path string, records []T) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("run output %s already exists", path)
	}
	return writeParquetFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// incoming records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// ---------------------------------------------------------------------------
// Record conversions
// ---------------------------------------------------------------------------

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     b.Symbol,
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func fromBarRecord(r BarRecord) domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

func toLedgerRecord(t domain.TradeResult) LedgerRecord {
	c := t.Signal.Candidate
	rec := LedgerRecord{
		Symbol:       c.Symbol,
		Date:         util.DateKey(c.Date),
		Direction:    string(c.Direction),
		Rank:         int32(c.Rank),
		RVOL:         c.RVOL,
		ATR:          c.ATR,
		OROpen:       c.OR.Open,
		ORHigh:       c.OR.High,
		ORLow:        c.OR.Low,
		ORClose:      c.OR.Close,
		ORVolume:     c.OR.Volume,
		EntryTrigger: t.Signal.EntryTrigger,
		StopPrice:    t.Signal.StopPrice,
		TargetPrice:  t.Signal.TargetPrice,
		Entered:      t.Entered,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		ExitReason:   string(t.ExitReason),
		Shares:       t.Shares,
		GrossPnL:     t.GrossPnL,
		Commission:   t.Commission,
		NetPnL:       t.NetPnL,
	}
	if t.Entered {
		rec.EntryTime = t.EntryTime.UnixMilli()
		rec.ExitTime = t.ExitTime.UnixMilli()
	}
	return rec
}

func fromLedgerRecord(r LedgerRecord) (domain.TradeResult, error) {
	date, err := time.ParseInLocation("2006-01-02", r.Date, util.Eastern())
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("ledger row for %s has bad date %q: %w", r.Symbol, r.Date, err)
	}
	t := domain.TradeResult{
		Signal: domain.Signal{
			Candidate: domain.Candidate{
				Symbol:    r.Symbol,
				Date:      date,
				Direction: domain.Direction(r.Direction),
				Rank:      int(r.Rank),
				RVOL:      r.RVOL,
				ATR:       r.ATR,
				OR: domain.OpeningRange{
					Open:   r.OROpen,
					High:   r.ORHigh,
					Low:    r.ORLow,
					Close:  r.ORClose,
					Volume: r.ORVolume,
				},
			},
			EntryTrigger: r.EntryTrigger,
			StopPrice:    r.StopPrice,
			TargetPrice:  r.TargetPrice,
		},
		Entered:    r.Entered,
		EntryPrice: r.EntryPrice,
		ExitPrice:  r.ExitPrice,
		ExitReason: domain.ExitReason(r.ExitReason),
		Shares:     r.Shares,
		GrossPnL:   r.GrossPnL,
		Commission: r.Commission,
		NetPnL:     r.NetPnL,
	}
	if r.Entered {
		t.EntryTime = time.UnixMilli(r.EntryTime)
		t.ExitTime = time.UnixMilli(r.ExitTime)
	}
	return t, nil
}
