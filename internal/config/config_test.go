package config

import (
	"os"
	"strings"
	"testing"
)

const testYAML = `
storage:
  data_dir: "/tmp/orbx/data"
  sqlite_path: "/tmp/orbx/orbx.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
logging:
  level: "info"
  format: "json"
gather:
  daily:
    start_date: "2020-01-01"
    batch_size: 500
    max_workers: 8
    rate_limit_per_min: 200
  minute:
    start_date: "2023-01-01"
    batch_size: 100
    max_workers: 4
    rate_limit_per_min: 100
backtest:
  run_name: "orb-2023"
  start_date: "2023-01-03"
  end_date: "2023-12-29"
  opening_range_minutes: 5
  rvol_floor: 1.5
  top_n: 20
  price_floor: 5.0
  avg_volume_floor: 1000000
  atr_floor: 0.5
  direction: "both"
  stop_atr_scale: 0.1
  sizing_mode: "equal_dollar"
  leverage_cap: 2.0
  liquidity_cap_pct: 0.01
  commission_per_share: 0.005
  commission_min: 1.0
  entry_fee_applied: true
  exit_fee_applied: true
  initial_capital: 100000
  compounding: "full"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "orbx-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ALPACA_API_KEY", "ALPACA_API_SECRET",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTestConfig(t, testYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/orbx/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/orbx/data")
	}
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Backtest.RunName != "orb-2023" {
		t.Errorf("Backtest.RunName = %q, want %q", cfg.Backtest.RunName, "orb-2023")
	}
	if cfg.Backtest.TopN != 20 {
		t.Errorf("Backtest.TopN = %d, want 20", cfg.Backtest.TopN)
	}
	if cfg.Backtest.StopATRScale != 0.1 {
		t.Errorf("Backtest.StopATRScale = %v, want 0.1", cfg.Backtest.StopATRScale)
	}

	// Defaults filled for omitted fields.
	if cfg.Backtest.BarResolutionMinutes != 1 {
		t.Errorf("BarResolutionMinutes default = %d, want 1", cfg.Backtest.BarResolutionMinutes)
	}
	if cfg.Backtest.RVOLLookback != 14 {
		t.Errorf("RVOLLookback default = %d, want 14", cfg.Backtest.RVOLLookback)
	}
	if cfg.Backtest.TrailingDays != 14 {
		t.Errorf("TrailingDays default = %d, want 14", cfg.Backtest.TrailingDays)
	}
	if cfg.Backtest.CalendarSymbol != "SPY" {
		t.Errorf("CalendarSymbol default = %q, want SPY", cfg.Backtest.CalendarSymbol)
	}
	if cfg.Backtest.TieBreak != "stop_first" {
		t.Errorf("TieBreak default = %q, want stop_first", cfg.Backtest.TieBreak)
	}
	if cfg.Backtest.FailPolicy != "halt" {
		t.Errorf("FailPolicy default = %q, want halt", cfg.Backtest.FailPolicy)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnvOverrides(t)
	path := writeTestConfig(t, testYAML)

	t.Setenv("DATA_DIR", "/override/data")
	t.Setenv("APCA_API_KEY_ID", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/override/data" {
		t.Errorf("Storage.DataDir = %q, want env override", cfg.Storage.DataDir)
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want env override", cfg.Alpaca.APIKey)
	}
}

func TestValidateOK(t *testing.T) {
	clearEnvOverrides(t)
	cfg, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() returned %v for a valid config", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"zero leverage cap", func(c *Config) { c.Backtest.LeverageCap = 0 }, "leverage_cap"},
		{"negative stop scale", func(c *Config) { c.Backtest.StopATRScale = -1 }, "stop_atr_scale"},
		{"bad direction", func(c *Config) { c.Backtest.Direction = "sideways" }, "direction"},
		{"bad sizing mode", func(c *Config) { c.Backtest.SizingMode = "martingale" }, "sizing_mode"},
		{"fixed risk without pct", func(c *Config) {
			c.Backtest.SizingMode = "fixed_risk"
			c.Backtest.RiskPct = 0
		}, "risk_pct"},
		{"bad compounding", func(c *Config) { c.Backtest.Compounding = "hourly" }, "compounding"},
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }, "initial_capital"},
		{"zero top_n", func(c *Config) { c.Backtest.TopN = 0 }, "top_n"},
		{"liquidity cap above one", func(c *Config) { c.Backtest.LiquidityCapPct = 1.5 }, "liquidity_cap_pct"},
		{"window not divisible", func(c *Config) {
			c.Backtest.OpeningRangeMinutes = 5
			c.Backtest.BarResolutionMinutes = 2
		}, "not divisible"},
		{"bad tie break", func(c *Config) { c.Backtest.TieBreak = "coin_flip" }, "tie_break"},
		{"missing run name", func(c *Config) { c.Backtest.RunName = "" }, "run_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvOverrides(t)
			cfg, err := Load(writeTestConfig(t, testYAML))
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}
