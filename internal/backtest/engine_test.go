package backtest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"orbx/internal/config"
	"orbx/internal/domain"
	"orbx/internal/store"
	"orbx/internal/universe"
	"orbx/internal/util"
)

func testBacktestConfig(run string) config.BacktestConfig {
	return config.BacktestConfig{
		RunName:              run,
		StartDate:            "2024-03-06",
		EndDate:              "2024-03-06",
		OpeningRangeMinutes:  5,
		BarResolutionMinutes: 1,
		RVOLFloor:            1.0,
		RVOLLookback:         2,
		TopN:                 5,
		PriceFloor:           1.0,
		AvgVolumeFloor:       1000,
		ATRFloor:             0.5,
		TrailingDays:         3,
		CalendarSymbol:       "SPY",
		Direction:            "both",
		StopATRScale:         1.0,
		TieBreak:             "stop_first",
		SizingMode:           "equal_dollar",
		LeverageCap:          1.0,
		LiquidityCapPct:      1.0,
		CommissionPerShare:   0.005,
		CommissionMin:        1.0,
		EntryFeeApplied:      true,
		ExitFeeApplied:       true,
		InitialCapital:       100_000,
		Compounding:          "full",
		MaxWorkers:           4,
		FailPolicy:           "halt",
	}
}

// weekdaysThrough returns the weekdays in [from, to], ascending, midnight ET.
func weekdaysThrough(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

func dailyBar(sym string, day time.Time) domain.Bar {
	// Constant shape: true range 2 everywhere, so ATR(n) == 2 exactly.
	return domain.Bar{
		Symbol:    sym,
		Timestamp: day,
		Open:      100, High: 101, Low: 99, Close: 100,
		Volume: 1_000_000,
	}
}

// windowBars builds a complete 5-bar opening window for sym on day.
func windowBars(sym string, day time.Time, perBarVolume int64, bullish bool) []domain.Bar {
	session := util.SessionFor(day)
	closePx := 99.5
	if bullish {
		closePx = 101.5
	}
	var bars []domain.Bar
	for i := 0; i < 5; i++ {
		b := domain.Bar{
			Symbol:    sym,
			Timestamp: session.Open.Add(time.Duration(i) * time.Minute),
			Open:      100, High: 102, Low: 99, Close: 100.5,
			Volume: perBarVolume,
		}
		if i == 4 {
			b.Close = closePx
		}
		bars = append(bars, b)
	}
	return bars
}

// seedEngineData writes daily bars for SPY and AAA over the trailing
// weekdays, prior-day opening windows for AAA's RVOL history, and a run-day
// minute series for AAA that breaks out and drifts into the close.
func seedEngineData(t *testing.T, st *store.ParquetStore) {
	t.Helper()
	ctx := context.Background()

	runDay := time.Date(2024, 3, 6, 0, 0, 0, 0, util.Eastern())
	first := time.Date(2024, 2, 26, 0, 0, 0, 0, util.Eastern())
	days := weekdaysThrough(first, runDay)

	var daily []domain.Bar
	for _, d := range days {
		daily = append(daily, dailyBar("SPY", d), dailyBar("AAA", d))
	}
	if err := st.WriteDailyBars(ctx, daily); err != nil {
		t.Fatalf("seeding daily bars: %v", err)
	}

	// Two prior opening windows at 1000/bar give an OR volume mean of 5000.
	for _, d := range days[len(days)-3 : len(days)-1] {
		if err := st.WriteMinuteBars(ctx, windowBars("AAA", d, 1000, true)); err != nil {
			t.Fatalf("seeding prior minute bars: %v", err)
		}
	}

	// Run day: a bullish window at 2000/bar (RVOL 2.0, trigger 102), then a
	// breakout bar and a drift bar held to the close.
	session := util.SessionFor(runDay)
	bars := windowBars("AAA", runDay, 2000, true)
	bars = append(bars,
		domain.Bar{
			Symbol:    "AAA",
			Timestamp: session.Open.Add(5 * time.Minute),
			Open:      101.5, High: 102.5, Low: 101.0, Close: 102.3,
			Volume: 1500,
		},
		domain.Bar{
			Symbol:    "AAA",
			Timestamp: session.Open.Add(6 * time.Minute),
			Open:      102.3, High: 103.5, Low: 101.8, Close: 103.0,
			Volume: 1200,
		},
	)
	if err := st.WriteMinuteBars(ctx, bars); err != nil {
		t.Fatalf("seeding run-day minute bars: %v", err)
	}
}

func TestEngineRun(t *testing.T) {
	st := store.NewParquetStore(t.TempDir())
	seedEngineData(t, st)

	cfg := testBacktestConfig("engine-test")
	eng := New(cfg, st, st, nil, "", slog.Default())

	summary, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.TradingDays != 1 {
		t.Errorf("trading days = %d, want 1", summary.TradingDays)
	}
	if summary.Candidates != 1 {
		t.Errorf("candidates = %d, want 1", summary.Candidates)
	}
	if summary.TradesEntered != 1 {
		t.Errorf("trades entered = %d, want 1", summary.TradesEntered)
	}

	trades, err := st.ReadTrades(context.Background(), cfg.RunName)
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}

	tr := trades[0]
	if tr.Signal.Candidate.Symbol != "AAA" {
		t.Errorf("symbol = %s, want AAA", tr.Signal.Candidate.Symbol)
	}
	if tr.Signal.Candidate.RVOL != 2.0 {
		t.Errorf("rvol = %v, want 2.0", tr.Signal.Candidate.RVOL)
	}
	if tr.EntryPrice != 102 {
		t.Errorf("entry price = %v, want trigger 102", tr.EntryPrice)
	}
	if tr.ExitReason != domain.ExitEOD {
		t.Errorf("exit reason = %s, want EOD", tr.ExitReason)
	}
	if tr.ExitPrice != 103 {
		t.Errorf("exit price = %v, want 103", tr.ExitPrice)
	}

	// Equal dollar: 100k/5 slots at 102/share = 196 shares; +$1/share move
	// grosses 196; $1 minimum per leg costs 2; net 194.
	if tr.Shares != 196 {
		t.Errorf("shares = %d, want 196", tr.Shares)
	}
	if tr.NetPnL != 194 {
		t.Errorf("net pnl = %v, want 194", tr.NetPnL)
	}
	if summary.FinalEquity != 100_194 {
		t.Errorf("final equity = %v, want 100194", summary.FinalEquity)
	}

	rows, err := st.ReadDailyPerformance(context.Background(), cfg.RunName)
	if err != nil {
		t.Fatalf("ReadDailyPerformance: %v", err)
	}
	if len(rows) != 1 || rows[0].EndingEquity != 100_194 {
		t.Errorf("daily rows = %+v, want one row ending at 100194", rows)
	}
}

func TestEngineDeterministic(t *testing.T) {
	st := store.NewParquetStore(t.TempDir())
	seedEngineData(t, st)
	ctx := context.Background()

	s1, err := New(testBacktestConfig("run-a"), st, st, nil, "", slog.Default()).Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	s2, err := New(testBacktestConfig("run-b"), st, st, nil, "", slog.Default()).Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if s1.FinalEquity != s2.FinalEquity || s1.TradesEntered != s2.TradesEntered {
		t.Errorf("runs diverge: %+v vs %+v", s1, s2)
	}

	t1, _ := st.ReadTrades(ctx, "run-a")
	t2, _ := st.ReadTrades(ctx, "run-b")
	if len(t1) != len(t2) {
		t.Fatalf("trade counts diverge: %d vs %d", len(t1), len(t2))
	}
	for i := range t1 {
		if t1[i].NetPnL != t2[i].NetPnL || t1[i].Shares != t2[i].Shares {
			t.Errorf("trade %d diverges: %+v vs %+v", i, t1[i], t2[i])
		}
	}
}

func TestEngineRejectsDuplicateRun(t *testing.T) {
	st := store.NewParquetStore(t.TempDir())
	seedEngineData(t, st)
	ctx := context.Background()

	cfg := testBacktestConfig("dup")
	if _, err := New(cfg, st, st, nil, "", slog.Default()).Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := New(cfg, st, st, nil, "", slog.Default()).Run(ctx); err == nil {
		t.Fatal("second run with the same name should fail, outputs are write-once")
	}
}

func TestEngineRequiredAllowlistMissing(t *testing.T) {
	st := store.NewParquetStore(t.TempDir())
	seedEngineData(t, st)

	cfg := testBacktestConfig("allowlist-halt")
	cfg.AllowlistRequired = true

	_, err := New(cfg, st, st, nil, t.TempDir(), slog.Default()).Run(context.Background())
	if err == nil {
		t.Fatal("expected run to halt on missing required allowlist")
	}
}

func TestEngineSkipDayPolicy(t *testing.T) {
	st := store.NewParquetStore(t.TempDir())
	seedEngineData(t, st)

	cfg := testBacktestConfig("allowlist-skip")
	cfg.AllowlistRequired = true
	cfg.FailPolicy = "skip_day"

	summary, err := New(cfg, st, st, nil, t.TempDir(), slog.Default()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TradesEntered != 0 {
		t.Errorf("entered = %d, want 0 on skipped day", summary.TradesEntered)
	}
	if summary.FinalEquity != 100_000 {
		t.Errorf("final equity = %v, want untouched 100000", summary.FinalEquity)
	}
}

func TestEvaluateSymbolUnreadableDailyBars(t *testing.T) {
	dir := t.TempDir()
	st := store.NewParquetStore(dir)

	bad := filepath.Join(dir, "us", "daily", "BAD", "2024.parquet")
	if err := os.MkdirAll(filepath.Dir(bad), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("not a parquet file"), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := New(testBacktestConfig("data-gap"), st, st, nil, "", slog.Default())
	day := time.Date(2024, 3, 6, 0, 0, 0, 0, util.Eastern())
	winStart, winEnd := util.SessionFor(day).OpeningWindow(5)

	res := eng.evaluateSymbol(context.Background(), "BAD", day, nil, winStart, winEnd, day.AddDate(0, 0, -10))
	if res.excl == nil {
		t.Fatal("expected an exclusion for unreadable daily bars")
	}
	if res.excl.Reason != string(universe.ReasonDataGap) {
		t.Errorf("reason = %q, want %q", res.excl.Reason, universe.ReasonDataGap)
	}
	if !errors.Is(res.excl.Err, ErrDataGap) {
		t.Errorf("cause = %v, want ErrDataGap", res.excl.Err)
	}
}
