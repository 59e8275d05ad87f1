// Package us gathers US equity market data from the Alpaca market-data API
// into the Parquet bar store: daily history for the whole symbol space and
// 1-minute intraday history for symbols that have daily data.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"orbx/internal/domain"
	"orbx/internal/gather"
	"orbx/internal/store"
	"orbx/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*DailyBarGatherer)(nil)
var _ gather.Gatherer = (*MinuteBarGatherer)(nil)

// ---------------------------------------------------------------------------
// DailyBarGatherer — brute-force daily OHLCV bars from the Alpaca API.
// ---------------------------------------------------------------------------

// DailyBarGatherer gathers daily bar data for US equities via the Alpaca
// market-data API. It tries every possible 1-4 character A-Z symbol
// combination plus 5+ char symbols from a CSV file, and records which
// symbols traded on which day as universe files.
type DailyBarGatherer struct {
	client     *marketdata.Client
	store      *store.ParquetStore
	batchSize  int // symbols per API call
	maxWorkers int // concurrent goroutines
	startDate  string
	csvPath    string
	apiKey     string
	apiSecret  string
	baseURL    string // live trading API for calendar
	log        *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer configured with the given
// Alpaca credentials, target store, and batch parameters.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL string, s *store.ParquetStore, batchSize, maxWorkers int, startDate, csvPath, baseURL string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &DailyBarGatherer{
		client:     marketdata.NewClient(opts),
		store:      s,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		startDate:  startDate,
		csvPath:    csvPath,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		log:        slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for all brute-force US equity symbols from the
// Alpaca API and writes them to the Parquet store. It is resumable and
// idempotent within a day.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}

	// 1. Determine end date from trading calendar.
	endDate, err := LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.baseURL)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	endDateStr := endDate.Format("2006-01-02")

	// 2. Set up progress tracker.
	dailyDir := filepath.Join(g.store.DataDir, string(domain.MarketUS), "daily")
	tracker, err := newProgressTracker(dailyDir)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	// 3. Check idempotency.
	if tracker.IsCompleted(endDateStr) {
		g.log.Info("already completed", "endDate", endDateStr)
		return nil
	}

	// 4. New day vs resume.
	lastCompleted := tracker.LastCompleted()
	if lastCompleted != "" && lastCompleted != endDateStr {
		// New day — stale .tried-empty, delete and start fresh.
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting tracker: %w", err)
		}
	}
	// If lastCompleted is empty, this is first run or mid-day crash — keep .tried-empty as-is.

	// 5. Build skip set: tried-empty ∪ existing symbols.
	existing, err := g.store.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("listing existing symbols: %w", err)
	}
	skipSet := make(map[string]struct{}, len(existing))
	for _, sym := range existing {
		skipSet[sym] = struct{}{}
	}

	// 6. Generate all brute-force symbols, filter, shuffle.
	allSymbols, err := AllBruteSymbols(g.csvPath)
	if err != nil {
		return fmt.Errorf("generating symbols: %w", err)
	}

	var remaining []string
	for _, sym := range allSymbols {
		if _, skip := skipSet[sym]; skip {
			continue
		}
		if tracker.IsTriedEmpty(sym) {
			continue
		}
		remaining = append(remaining, sym)
	}

	totalSymbols := len(allSymbols)
	totalBatches := (len(remaining) + g.batchSize - 1) / max(g.batchSize, 1)

	g.log.Info("starting us-daily",
		"endDate", endDateStr,
		"total", totalSymbols,
		"remaining", len(remaining),
		"batches", totalBatches,
	)

	if len(remaining) == 0 {
		if err := tracker.MarkCompleted(endDateStr); err != nil {
			return fmt.Errorf("marking completed: %w", err)
		}
		g.log.Info("no remaining symbols to process")
		return nil
	}

	// 7. Split into batches.
	var batches [][]string
	for i := 0; i < len(remaining); i += g.batchSize {
		end := min(i+g.batchSize, len(remaining))
		batches = append(batches, remaining[i:end])
	}

	// 8. Set up universe writer.
	universeDir := filepath.Join(g.store.DataDir, string(domain.MarketUS), "universe")
	universe := newUniverseWriter(universeDir)

	// 9. Feed batches to workers.
	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalHits atomic.Int64
		totalMiss atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}

				batch := batches[batchIdx]
				bars, err := g.fetchMultiBars(ctx, batch, marketdata.OneDay, gather.DateRange{Start: start, End: endDate})
				if err != nil {
					g.log.Error("batch fetch failed",
						"batch", fmt.Sprintf("%d/%d", batchIdx+1, totalBatches),
						"err", err,
					)
					continue
				}

				// Determine hits and misses.
				hitSymbols := make(map[string]struct{})
				for _, b := range bars {
					hitSymbols[b.Symbol] = struct{}{}
				}

				var emptySymbols []string
				for _, sym := range batch {
					if _, hit := hitSymbols[sym]; !hit {
						emptySymbols = append(emptySymbols, sym)
					}
				}

				// Write bars to store.
				if len(bars) > 0 {
					if err := g.store.WriteDailyBars(ctx, bars); err != nil {
						g.log.Error("writing bars failed", "err", err)
						continue
					}
					universe.AddBars(bars)
					if err := universe.Flush(); err != nil {
						g.log.Error("flushing universe failed", "err", err)
					}
				}

				// Mark empty symbols.
				if len(emptySymbols) > 0 {
					if err := tracker.MarkEmpty(emptySymbols); err != nil {
						g.log.Error("marking empty failed", "err", err)
					}
				}

				hits := int64(len(hitSymbols))
				misses := int64(len(emptySymbols))
				totalHits.Add(hits)
				totalMiss.Add(misses)

				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", batchIdx+1, totalBatches),
					"hits", hits,
					"empty", misses,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	// 10. Finalize universe files.
	if err := universe.Finalize(); err != nil {
		return fmt.Errorf("finalizing universe: %w", err)
	}

	// 11. Mark completed.
	if err := tracker.MarkCompleted(endDateStr); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}

	g.log.Info("complete",
		"hits", totalHits.Load(),
		"empty", totalMiss.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// fetchMultiBars fetches bars for multiple symbols in a single API call,
// retrying transient failures with backoff.
func (g *DailyBarGatherer) fetchMultiBars(ctx context.Context, symbols []string, tf marketdata.TimeFrame, span gather.DateRange) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, 3, 2*time.Second, func() error {
		var reqErr error
		multiBars, reqErr = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     span.Start,
			End:       span.End,
			Feed:      "sip",
		})
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	return convertMultiBars(multiBars), nil
}

// convertMultiBars flattens an Alpaca multi-bar response into domain bars.
func convertMultiBars(multiBars map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars
}

// ---------------------------------------------------------------------------
// MinuteBarGatherer — 1-minute intraday bars for symbols with daily data.
// ---------------------------------------------------------------------------

// MinuteBarGatherer gathers 1-minute bars via the Alpaca market-data API for
// every symbol already present in the daily store. Minute requests are far
// heavier than daily ones, so calls are paced by a rate limiter and progress
// is tracked per symbol for resumability.
type MinuteBarGatherer struct {
	client     *marketdata.Client
	store      *store.ParquetStore
	batchSize  int // symbols per API call
	maxWorkers int
	limiter    *util.RateLimiter
	startDate  string
	apiKey     string
	apiSecret  string
	baseURL    string
	log        *slog.Logger
}

// NewMinuteBarGatherer creates a MinuteBarGatherer configured with the given
// Alpaca credentials, target store, batch parameters, and rate limit.
func NewMinuteBarGatherer(apiKey, apiSecret, dataURL string, s *store.ParquetStore, batchSize, maxWorkers, rateLimitPerMin int, startDate, baseURL string) *MinuteBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &MinuteBarGatherer{
		client:     marketdata.NewClient(opts),
		store:      s,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		startDate:  startDate,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		log:        slog.Default().With("gatherer", "us-minute"),
	}
}

// Name returns the gatherer identifier.
func (g *MinuteBarGatherer) Name() string { return "us-minute" }

// Run fetches minute bars for every symbol in the daily store and writes
// them to the Parquet store, one file per symbol per day. Symbols whose
// minute history is already fetched through the latest finished trading day
// are skipped.
func (g *MinuteBarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}

	endDate, err := LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.baseURL)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}
	endDateStr := endDate.Format("2006-01-02")

	minuteDir := filepath.Join(g.store.DataDir, string(domain.MarketUS), "minute")
	tracker, err := newProgressTracker(minuteDir)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}
	defer tracker.Close()

	if tracker.IsCompleted(endDateStr) {
		g.log.Info("already completed", "endDate", endDateStr)
		return nil
	}
	if last := tracker.LastCompleted(); last != "" && last != endDateStr {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting tracker: %w", err)
		}
	}

	symbols, err := g.store.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("listing symbols: %w", err)
	}

	var remaining []string
	for _, sym := range symbols {
		if !tracker.IsTriedEmpty(sym) {
			remaining = append(remaining, sym)
		}
	}

	var batches [][]string
	for i := 0; i < len(remaining); i += g.batchSize {
		end := min(i+g.batchSize, len(remaining))
		batches = append(batches, remaining[i:end])
	}

	g.log.Info("starting us-minute",
		"endDate", endDateStr,
		"symbols", len(symbols),
		"remaining", len(remaining),
		"batches", len(batches),
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg       sync.WaitGroup
		fetched  atomic.Int64
		runStart = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}
				if err := g.limiter.Wait(ctx); err != nil {
					return
				}

				batch := batches[batchIdx]
				bars, err := g.fetchMinuteBars(ctx, batch, gather.DateRange{Start: start, End: endDate})
				if err != nil {
					g.log.Error("batch fetch failed",
						"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
						"err", err,
					)
					continue
				}

				if len(bars) > 0 {
					if err := g.store.WriteMinuteBars(ctx, bars); err != nil {
						g.log.Error("writing minute bars failed", "err", err)
						continue
					}
				}

				// Done symbols are recorded whether or not they had bars:
				// a symbol with no minute data stays empty on retry too.
				if err := tracker.MarkEmpty(batch); err != nil {
					g.log.Error("marking progress failed", "err", err)
				}

				fetched.Add(int64(len(bars)))
				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
					"bars", len(bars),
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := tracker.MarkCompleted(endDateStr); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}

	g.log.Info("complete",
		"bars", fetched.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// fetchMinuteBars fetches 1-minute bars for a symbol batch, retrying
// transient failures with backoff.
func (g *MinuteBarGatherer) fetchMinuteBars(ctx context.Context, symbols []string, span gather.DateRange) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, 3, 2*time.Second, func() error {
		var reqErr error
		multiBars, reqErr = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneMin,
			Start:     span.Start,
			// End is exclusive of the unfinished part of the last day.
			End:  span.End.AddDate(0, 0, 1),
			Feed: "sip",
		})
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	return convertMultiBars(multiBars), nil
}
