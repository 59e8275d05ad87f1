package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"orbx/internal/config"
	"orbx/internal/domain"
	"orbx/internal/stats"
	"orbx/internal/store"
	"orbx/internal/universe"
	"orbx/internal/util"
)

// Engine runs a full backtest: a deterministic walk over trading days in
// ascending order, with per-candidate evaluation parallelized inside each
// day. The ledger commit is the only serialization point; it waits for the
// whole day before advancing equity.
type Engine struct {
	cfg     config.BacktestConfig
	bars    store.BarStore
	results store.ResultStore
	db      *store.SQLiteStore // optional mirror for ad-hoc SQL

	filter *universe.Filter
	allow  *universe.Allowlist
	sizer  *Sizer
	comm   Commission
	sim    SimulatorConfig

	log *slog.Logger

	// Opening-range volume memo: (symbol, date key) → volume, with a
	// negative sentinel for days with no valid opening range. Bars never
	// change mid-run, so entries are never invalidated.
	orVolMu  sync.Mutex
	orVolume map[string]float64
}

// RunSummary is what the engine hands back to the caller once the outputs
// are persisted.
type RunSummary struct {
	Run           string
	TradingDays   int
	Candidates    int
	TradesEntered int
	FinalEquity   float64
}

// New wires an Engine from a validated configuration. Bar reads go through
// a memoizing cache since historical bars never change during a run.
func New(cfg config.BacktestConfig, bars store.BarStore, results store.ResultStore, db *store.SQLiteStore, allowDir string, log *slog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		bars:    store.NewCachingBarStore(bars),
		results: results,
		db:      db,
		filter: &universe.Filter{
			PriceFloor:     cfg.PriceFloor,
			AvgVolumeFloor: cfg.AvgVolumeFloor,
			ATRFloor:       cfg.ATRFloor,
		},
		allow: universe.NewAllowlist(allowDir, cfg.AllowlistRequired),
		sizer: &Sizer{
			Mode:            domain.SizingMode(cfg.SizingMode),
			TopN:            cfg.TopN,
			RiskPct:         cfg.RiskPct,
			LeverageCap:     cfg.LeverageCap,
			LiquidityCapPct: cfg.LiquidityCapPct,
		},
		comm: Commission{
			PerShare: cfg.CommissionPerShare,
			Min:      cfg.CommissionMin,
			OnEntry:  cfg.EntryFeeApplied,
			OnExit:   cfg.ExitFeeApplied,
		},
		sim: SimulatorConfig{
			StopATRScale:   cfg.StopATRScale,
			TargetATRScale: cfg.TargetATRScale,
			TieBreak:       TieBreak(cfg.TieBreak),
			BarResolution:  time.Duration(cfg.BarResolutionMinutes) * time.Minute,
		},
		log:      log.With("component", "engine"),
		orVolume: make(map[string]float64),
	}
}

// Run executes the backtest between the configured dates and persists the
// trade ledger, daily performance table, and equity curve under the run
// name. Days advance strictly in order; under compounding each day's sizing
// depends on the previous day's close.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	start, err := time.ParseInLocation("2006-01-02", e.cfg.StartDate, util.Eastern())
	if err != nil {
		return nil, fmt.Errorf("parsing start date %q: %w", e.cfg.StartDate, err)
	}
	end, err := time.ParseInLocation("2006-01-02", e.cfg.EndDate, util.Eastern())
	if err != nil {
		return nil, fmt.Errorf("parsing end date %q: %w", e.cfg.EndDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", e.cfg.EndDate, e.cfg.StartDate)
	}

	// History buffer for trailing stats and RVOL lookback. Calendar days are
	// roughly 7/5 of trading days; double the need to stay safe over holidays.
	bufferDays := 2 * max(e.cfg.TrailingDays+1, e.cfg.RVOLLookback+1) * 7 / 5
	historyStart := start.AddDate(0, 0, -bufferDays)

	allDays, err := e.tradingDays(ctx, historyStart, end)
	if err != nil {
		return nil, err
	}
	var days []time.Time
	firstIdx := 0
	for i, d := range allDays {
		if !d.Before(start) {
			firstIdx = i
			days = allDays[i:]
			break
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s (calendar symbol %s)",
			e.cfg.StartDate, e.cfg.EndDate, e.cfg.CalendarSymbol)
	}

	symbols, err := e.bars.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing symbols: %w", err)
	}

	e.log.Info("starting run",
		"run", e.cfg.RunName,
		"days", len(days),
		"symbols", len(symbols),
		"top_n", e.cfg.TopN,
		"sizing", e.cfg.SizingMode,
		"compounding", e.cfg.Compounding,
		"allowlist_required", e.allow.Required(),
	)

	ledger := NewLedger(e.cfg.InitialCapital, domain.Compounding(e.cfg.Compounding))
	var allTrades []domain.TradeResult
	candidates := 0
	runStart := time.Now()

	for i, day := range days {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		dayTrades, dayCands, err := e.runDay(ctx, day, allDays[:firstIdx+i], symbols, ledger.StartingEquity(day), historyStart)
		if err != nil {
			if e.cfg.FailPolicy == "skip_day" && errors.Is(err, universe.ErrRequiredInputMissing) {
				e.log.Warn("day rejected, committing empty", "date", util.DateKey(day), "err", err)
				ledger.Commit(day, nil)
				continue
			}
			return nil, fmt.Errorf("day %s: %w", util.DateKey(day), err)
		}

		row := ledger.Commit(day, dayTrades)
		allTrades = append(allTrades, dayTrades...)
		candidates += dayCands

		e.log.Debug("day committed",
			"date", util.DateKey(day),
			"candidates", dayCands,
			"entered", row.TradesEntered,
			"pnl", row.DailyPnL,
			"equity", row.EndingEquity,
		)
	}

	if err := e.persist(ctx, allTrades, ledger); err != nil {
		return nil, err
	}

	summary := &RunSummary{
		Run:         e.cfg.RunName,
		TradingDays: len(days),
		Candidates:  candidates,
		FinalEquity: ledger.FinalEquity(),
	}
	for _, t := range allTrades {
		if t.Entered {
			summary.TradesEntered++
		}
	}

	e.log.Info("run complete",
		"run", e.cfg.RunName,
		"days", summary.TradingDays,
		"candidates", summary.Candidates,
		"entered", summary.TradesEntered,
		"final_equity", summary.FinalEquity,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return summary, nil
}

// tradingDays derives the trading-day sequence from the calendar symbol's
// daily bars: weekends and holidays are absent by construction.
func (e *Engine) tradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	bars, err := e.bars.ReadDailyBars(ctx, e.cfg.CalendarSymbol, start, end.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("reading calendar bars for %s: %w", e.cfg.CalendarSymbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("calendar symbol %s has no daily bars in range: %w",
			e.cfg.CalendarSymbol, universe.ErrRequiredInputMissing)
	}

	var days []time.Time
	seen := make(map[string]bool)
	for _, b := range bars {
		key := util.DateKey(b.Timestamp)
		if !seen[key] {
			seen[key] = true
			days = append(days, util.MidnightET(b.Timestamp))
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// candidateResult is what one worker produces for one symbol.
type candidateResult struct {
	cand *domain.Candidate
	bars []domain.Bar // the day's minute bars, reused by the simulator
	excl *Exclusion
}

// runDay evaluates one trading day end to end and returns the complete,
// costed trade set. priorDays are all known trading days before this one
// (used for the RVOL lookback).
func (e *Engine) runDay(ctx context.Context, day time.Time, priorDays []time.Time, symbols []string, equity float64, historyStart time.Time) ([]domain.TradeResult, int, error) {
	session := util.SessionFor(day)
	winStart, winEnd := session.OpeningWindow(e.cfg.OpeningRangeMinutes)

	allowed, err := e.allow.ForDate(day)
	if err != nil {
		// A required allowlist that is missing rejects the whole day.
		return nil, 0, err
	}

	pool := symbols
	if allowed != nil {
		pool = pool[:0:0]
		for _, sym := range symbols {
			if _, ok := allowed[sym]; ok {
				pool = append(pool, sym)
			}
		}
	}

	// Per-candidate evaluation has no cross-symbol dependency: fan out.
	results := make(map[string]candidateResult, len(pool))
	var mu sync.Mutex
	var wg sync.WaitGroup

	symCh := make(chan string, len(pool))
	for _, sym := range pool {
		symCh <- sym
	}
	close(symCh)

	workers := min(e.cfg.MaxWorkers, len(pool))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}
				res := e.evaluateSymbol(ctx, sym, day, priorDays, winStart, winEnd, historyStart)
				mu.Lock()
				results[sym] = res
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}

	// Deterministic assembly: lexical order in, stable ranking out.
	var cands []domain.Candidate
	dayBars := make(map[string][]domain.Bar, len(results))
	for _, sym := range pool {
		res := results[sym]
		if res.excl != nil {
			if res.excl.Err != nil {
				e.log.Debug("excluded", "date", util.DateKey(day), "symbol", sym, "reason", res.excl.Reason, "err", res.excl.Err)
			} else {
				e.log.Debug("excluded", "date", util.DateKey(day), "symbol", sym, "reason", res.excl.Reason)
			}
			continue
		}
		cands = append(cands, *res.cand)
		dayBars[sym] = res.bars
	}

	ranked := RankByRVOL(cands, e.cfg.RVOLFloor, e.cfg.TopN)

	// Signals are derived up front; candidates whose direction is filtered
	// out, or whose stop could never fill, are skipped entirely.
	sigs := make([]domain.Signal, len(ranked))
	skip := make([]bool, len(ranked))
	for i, c := range ranked {
		if c.Direction == domain.DirectionSkip || !DirectionAllowed(c.Direction, e.cfg.Direction) {
			skip[i] = true
			continue
		}
		sig, ok := BuildSignal(c, e.sim)
		if !ok {
			skip[i] = true
			e.log.Debug("signal rejected", "date", util.DateKey(day), "symbol", c.Symbol, "reason", "non_positive_stop")
			continue
		}
		sigs[i] = sig
	}

	// Simulate the ranked candidates in parallel; results are pure values.
	sims := make([]domain.TradeResult, len(ranked))
	var simWG sync.WaitGroup
	idxCh := make(chan int, len(ranked))
	for i := range ranked {
		idxCh <- i
	}
	close(idxCh)

	simWorkers := min(e.cfg.MaxWorkers, len(ranked))
	for w := 0; w < simWorkers; w++ {
		simWG.Add(1)
		go func() {
			defer simWG.Done()
			for i := range idxCh {
				if skip[i] {
					continue
				}
				post := postWindowBars(dayBars[ranked[i].Symbol], winEnd)
				sims[i] = Simulate(sigs[i], post, session.Close, e.sim)
			}
		}()
	}
	simWG.Wait()

	// Sizing and costing run sequentially in rank order: rank is
	// capital-allocation priority, and the leverage cap is aggregate.
	var trades []domain.TradeResult
	openNotional := 0.0
	for i, c := range ranked {
		if skip[i] {
			continue
		}
		t := sims[i]
		if t.Entered {
			stopDistance := abs(t.Signal.EntryTrigger - t.Signal.StopPrice)
			shares := e.sizer.Shares(equity, t.EntryPrice, stopDistance, c.AvgVolume, openNotional)
			if shares == 0 {
				// No capital room left (or no liquidity): the entry never
				// happens for this candidate.
				t = domain.TradeResult{Signal: t.Signal, ExitReason: domain.ExitNoEntry}
			} else {
				t = e.applyCosts(t, shares)
				openNotional += float64(shares) * t.EntryPrice
			}
		}
		trades = append(trades, t)
	}

	return trades, len(ranked), nil
}

// evaluateSymbol builds one symbol's candidate for the day, or an exclusion.
// Every per-symbol failure is converted to an exclusion, never a run abort.
func (e *Engine) evaluateSymbol(ctx context.Context, sym string, day time.Time, priorDays []time.Time, winStart, winEnd, historyStart time.Time) candidateResult {
	exclude := func(reason string, cause error) candidateResult {
		return candidateResult{excl: &Exclusion{Symbol: sym, Reason: reason, Err: cause}}
	}

	// Trailing daily statistics, strictly before the current day.
	daily, err := e.bars.ReadDailyBars(ctx, sym, historyStart, day.AddDate(0, 0, 1))
	if err != nil {
		return exclude(string(universe.ReasonDataGap), fmt.Errorf("daily bars for %s: %v: %w", sym, err, ErrDataGap))
	}
	var trailing []stats.OHLCV
	var lastClose float64
	for _, b := range daily {
		if !util.MidnightET(b.Timestamp).Before(day) {
			continue
		}
		trailing = append(trailing, stats.OHLCV{High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
		lastClose = b.Close
	}

	metrics := universe.Metrics{LastClose: lastClose}
	atr, atrErr := stats.ATR(trailing, e.cfg.TrailingDays)
	avgVol, volErr := stats.AvgVolume(trailing, e.cfg.TrailingDays)
	if atrErr == nil && volErr == nil {
		metrics.ATR = atr
		metrics.AvgVolume = avgVol
		metrics.Valid = true
	}

	if reason := e.filter.Check(metrics); reason != universe.ReasonEligible {
		return exclude(string(reason), nil)
	}

	// Opening range for the day.
	minuteBars, err := e.bars.ReadMinuteBars(ctx, sym, day)
	if err != nil {
		return exclude(string(universe.ReasonDataGap), fmt.Errorf("minute bars for %s/%s: %v: %w", sym, util.DateKey(day), err, ErrDataGap))
	}
	expected := e.cfg.OpeningRangeMinutes / e.cfg.BarResolutionMinutes
	or, err := ComputeOpeningRange(minuteBars, winStart, winEnd, expected)
	if err != nil {
		return exclude("no_opening_range", err)
	}

	// Relative volume against the prior valid opening ranges.
	history, err := e.orVolumeHistory(ctx, sym, priorDays)
	if err != nil {
		return exclude("insufficient_rvol_history", err)
	}
	rvol, err := RVOL(or.Volume, history)
	if err != nil {
		return exclude("insufficient_rvol_history", err)
	}

	cand := &domain.Candidate{
		Symbol:    sym,
		Date:      day,
		OR:        or,
		Direction: Classify(or),
		RVOL:      rvol,
		ATR:       metrics.ATR,
		AvgVolume: metrics.AvgVolume,
	}
	return candidateResult{cand: cand, bars: minuteBars}
}

// orVolumeHistory walks backwards over prior trading days collecting the
// last K valid opening-range volumes, skipping days without a valid opening
// range. Fewer than K valid days is an error: the statistic is required and
// never defaulted.
func (e *Engine) orVolumeHistory(ctx context.Context, sym string, priorDays []time.Time) ([]float64, error) {
	k := e.cfg.RVOLLookback
	history := make([]float64, 0, k)

	for i := len(priorDays) - 1; i >= 0 && len(history) < k; i-- {
		vol, err := e.openingRangeVolume(ctx, sym, priorDays[i])
		if err != nil {
			return nil, err
		}
		if vol >= 0 {
			history = append(history, vol)
		}
	}

	if len(history) < k {
		return nil, fmt.Errorf("%d of %d valid opening ranges: %w", len(history), k, ErrInsufficientRVOLHistory)
	}
	return history, nil
}

// openingRangeVolume returns the memoized opening-range volume for a
// symbol/day, or -1 when the day has no valid opening range.
func (e *Engine) openingRangeVolume(ctx context.Context, sym string, day time.Time) (float64, error) {
	key := sym + "|" + util.DateKey(day)

	e.orVolMu.Lock()
	vol, ok := e.orVolume[key]
	e.orVolMu.Unlock()
	if ok {
		return vol, nil
	}

	bars, err := e.bars.ReadMinuteBars(ctx, sym, day)
	if err != nil {
		return 0, fmt.Errorf("minute bars for %s/%s: %w", sym, util.DateKey(day), err)
	}

	session := util.SessionFor(day)
	winStart, winEnd := session.OpeningWindow(e.cfg.OpeningRangeMinutes)
	expected := e.cfg.OpeningRangeMinutes / e.cfg.BarResolutionMinutes

	vol = -1
	if or, orErr := ComputeOpeningRange(bars, winStart, winEnd, expected); orErr == nil {
		vol = float64(or.Volume)
	}

	e.orVolMu.Lock()
	e.orVolume[key] = vol
	e.orVolMu.Unlock()
	return vol, nil
}

// applyCosts finalizes an entered trade: shares, gross P&L from the price
// path, commissions, net P&L.
func (e *Engine) applyCosts(t domain.TradeResult, shares int64) domain.TradeResult {
	t.Shares = shares

	move := t.ExitPrice - t.EntryPrice
	if t.Signal.Candidate.Direction == domain.DirectionShort {
		move = -move
	}
	t.GrossPnL = move * float64(shares)
	t.Commission = e.comm.RoundTrip(shares)
	t.NetPnL = t.GrossPnL - t.Commission
	return t
}

// persist writes the three run outputs and, when configured, mirrors them
// into SQLite.
func (e *Engine) persist(ctx context.Context, trades []domain.TradeResult, ledger *Ledger) error {
	run := e.cfg.RunName
	if err := e.results.WriteTrades(ctx, run, trades); err != nil {
		return fmt.Errorf("writing trade ledger: %w", err)
	}
	if err := e.results.WriteDailyPerformance(ctx, run, ledger.Rows()); err != nil {
		return fmt.Errorf("writing daily performance: %w", err)
	}
	if err := e.results.WriteEquityCurve(ctx, run, ledger.Curve()); err != nil {
		return fmt.Errorf("writing equity curve: %w", err)
	}

	if e.db != nil {
		if err := e.db.SaveTrades(ctx, run, trades); err != nil {
			return fmt.Errorf("mirroring trades to sqlite: %w", err)
		}
		if err := e.db.SaveDailyEquity(ctx, run, ledger.Rows()); err != nil {
			return fmt.Errorf("mirroring daily equity to sqlite: %w", err)
		}
	}
	return nil
}

// postWindowBars returns the bars at or after the opening window's end.
func postWindowBars(bars []domain.Bar, winEnd time.Time) []domain.Bar {
	for i, b := range bars {
		if !b.Timestamp.Before(winEnd) {
			return bars[i:]
		}
	}
	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

