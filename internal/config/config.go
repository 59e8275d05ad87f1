// Package config loads and validates the YAML run configuration, with
// environment variable overrides for credentials and paths.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"orbx/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the orbx backtester.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API,
// used only by the data gathering commands.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls data gathering behaviour per data type.
type GatherConfig struct {
	Daily  GatherJobConfig `yaml:"daily"`
	Minute GatherJobConfig `yaml:"minute"`
}

// GatherJobConfig holds parameters for a single data gathering job.
type GatherJobConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	SymbolsCSV      string `yaml:"symbols_csv"`
}

// BacktestConfig defines every parameter of a simulation run. Validate
// rejects a config before any simulation work begins.
type BacktestConfig struct {
	RunName   string `yaml:"run_name"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	// Opening range and bar resolution.
	OpeningRangeMinutes  int `yaml:"opening_range_minutes"`
	BarResolutionMinutes int `yaml:"bar_resolution_minutes"`

	// Ranking.
	RVOLFloor    float64 `yaml:"rvol_floor"`
	RVOLLookback int     `yaml:"rvol_lookback"`
	TopN         int     `yaml:"top_n"`

	// Universe eligibility.
	PriceFloor        float64 `yaml:"price_floor"`
	AvgVolumeFloor    float64 `yaml:"avg_volume_floor"`
	ATRFloor          float64 `yaml:"atr_floor"`
	TrailingDays      int     `yaml:"trailing_days"`
	AllowlistRequired bool    `yaml:"allowlist_required"`
	CalendarSymbol    string  `yaml:"calendar_symbol"`

	// Direction and exits.
	Direction      string  `yaml:"direction"` // both | long | short
	StopATRScale   float64 `yaml:"stop_atr_scale"`
	TargetATRScale float64 `yaml:"target_atr_scale"` // 0 disables the profit target
	TieBreak       string  `yaml:"tie_break"`        // stop_first | target_first

	// Sizing and costs.
	SizingMode         string  `yaml:"sizing_mode"` // equal_dollar | fixed_risk
	RiskPct            float64 `yaml:"risk_pct"`
	LeverageCap        float64 `yaml:"leverage_cap"`
	LiquidityCapPct    float64 `yaml:"liquidity_cap_pct"`
	CommissionPerShare float64 `yaml:"commission_per_share"`
	CommissionMin      float64 `yaml:"commission_min"`
	EntryFeeApplied    bool    `yaml:"entry_fee_applied"`
	ExitFeeApplied     bool    `yaml:"exit_fee_applied"`

	// Capital.
	InitialCapital float64 `yaml:"initial_capital"`
	Compounding    string  `yaml:"compounding"` // none | yearly | full

	// Execution.
	MaxWorkers int    `yaml:"max_workers"`
	FailPolicy string `yaml:"fail_policy"` // halt | skip_day
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued optional fields with their documented
// defaults. Required fields stay zero and are caught by Validate.
func applyDefaults(cfg *Config) {
	bt := &cfg.Backtest
	if bt.OpeningRangeMinutes == 0 {
		bt.OpeningRangeMinutes = 5
	}
	if bt.BarResolutionMinutes == 0 {
		bt.BarResolutionMinutes = 1
	}
	if bt.RVOLLookback == 0 {
		bt.RVOLLookback = 14
	}
	if bt.TrailingDays == 0 {
		bt.TrailingDays = 14
	}
	if bt.CalendarSymbol == "" {
		bt.CalendarSymbol = "SPY"
	}
	if bt.Direction == "" {
		bt.Direction = "both"
	}
	if bt.TieBreak == "" {
		bt.TieBreak = "stop_first"
	}
	if bt.SizingMode == "" {
		bt.SizingMode = string(domain.SizingEqualDollar)
	}
	if bt.Compounding == "" {
		bt.Compounding = string(domain.CompoundingFull)
	}
	if bt.MaxWorkers == 0 {
		bt.MaxWorkers = 8
	}
	if bt.FailPolicy == "" {
		bt.FailPolicy = "halt"
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the backtest parameters and returns a descriptive error
// for the first invalid one. It must pass before a run starts.
func (c *Config) Validate() error {
	bt := c.Backtest

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if bt.RunName == "" {
		return fmt.Errorf("backtest.run_name is required")
	}
	if bt.StartDate == "" || bt.EndDate == "" {
		return fmt.Errorf("backtest.start_date and backtest.end_date are required")
	}
	if bt.OpeningRangeMinutes <= 0 {
		return fmt.Errorf("backtest.opening_range_minutes %d: must be positive", bt.OpeningRangeMinutes)
	}
	if bt.BarResolutionMinutes <= 0 {
		return fmt.Errorf("backtest.bar_resolution_minutes %d: must be positive", bt.BarResolutionMinutes)
	}
	if bt.OpeningRangeMinutes%bt.BarResolutionMinutes != 0 {
		return fmt.Errorf("backtest.opening_range_minutes %d not divisible by bar_resolution_minutes %d",
			bt.OpeningRangeMinutes, bt.BarResolutionMinutes)
	}
	if bt.TopN <= 0 {
		return fmt.Errorf("backtest.top_n %d: must be positive", bt.TopN)
	}
	if bt.RVOLLookback <= 0 {
		return fmt.Errorf("backtest.rvol_lookback %d: must be positive", bt.RVOLLookback)
	}
	if bt.TrailingDays <= 0 {
		return fmt.Errorf("backtest.trailing_days %d: must be positive", bt.TrailingDays)
	}
	if bt.LeverageCap <= 0 {
		return fmt.Errorf("backtest.leverage_cap %v: must be positive", bt.LeverageCap)
	}
	if bt.LiquidityCapPct < 0 || bt.LiquidityCapPct > 1 {
		return fmt.Errorf("backtest.liquidity_cap_pct %v: must be in [0, 1]", bt.LiquidityCapPct)
	}
	if bt.StopATRScale <= 0 {
		return fmt.Errorf("backtest.stop_atr_scale %v: must be positive", bt.StopATRScale)
	}
	if bt.TargetATRScale < 0 {
		return fmt.Errorf("backtest.target_atr_scale %v: must be non-negative", bt.TargetATRScale)
	}
	if bt.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital %v: must be positive", bt.InitialCapital)
	}
	if bt.CommissionPerShare < 0 || bt.CommissionMin < 0 {
		return fmt.Errorf("backtest commission rates must be non-negative")
	}
	if bt.MaxWorkers <= 0 {
		return fmt.Errorf("backtest.max_workers %d: must be positive", bt.MaxWorkers)
	}

	switch bt.Direction {
	case "both", "long", "short":
	default:
		return fmt.Errorf("backtest.direction %q: must be both, long, or short", bt.Direction)
	}
	switch bt.TieBreak {
	case "stop_first", "target_first":
	default:
		return fmt.Errorf("backtest.tie_break %q: must be stop_first or target_first", bt.TieBreak)
	}
	switch domain.SizingMode(bt.SizingMode) {
	case domain.SizingEqualDollar:
	case domain.SizingFixedRisk:
		if bt.RiskPct <= 0 || bt.RiskPct >= 1 {
			return fmt.Errorf("backtest.risk_pct %v: must be in (0, 1) for fixed_risk sizing", bt.RiskPct)
		}
	default:
		return fmt.Errorf("backtest.sizing_mode %q: must be equal_dollar or fixed_risk", bt.SizingMode)
	}
	switch domain.Compounding(bt.Compounding) {
	case domain.CompoundingNone, domain.CompoundingYearly, domain.CompoundingFull:
	default:
		return fmt.Errorf("backtest.compounding %q: must be none, yearly, or full", bt.Compounding)
	}
	switch bt.FailPolicy {
	case "halt", "skip_day":
	default:
		return fmt.Errorf("backtest.fail_policy %q: must be halt or skip_day", bt.FailPolicy)
	}

	return nil
}
