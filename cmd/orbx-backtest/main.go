package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"orbx/internal/backtest"
	"orbx/internal/config"
	"orbx/internal/domain"
	"orbx/internal/store"
	"orbx/internal/util"
)

func main() {
	cfgPath := "config/orbx.yaml"
	if p := os.Getenv("ORBX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid backtest config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	// SQLite mirror is optional; runs work from Parquet alone.
	var db *store.SQLiteStore
	if cfg.Storage.SQLitePath != "" {
		db, err = store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		defer db.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if db != nil {
		cfgYAML, err := yaml.Marshal(cfg.Backtest)
		if err != nil {
			log.Fatalf("marshalling run config: %v", err)
		}
		if err := db.CreateRun(ctx, cfg.Backtest.RunName, cfg.Backtest.StartDate, cfg.Backtest.EndDate, string(cfgYAML)); err != nil {
			log.Fatalf("registering run: %v", err)
		}
	}

	allowlistDir := filepath.Join(cfg.Storage.DataDir, string(domain.MarketUS), "universe")
	eng := backtest.New(cfg.Backtest, pstore, pstore, db, allowlistDir, logger)

	summary, err := eng.Run(ctx)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if db != nil {
		if err := db.FinishRun(ctx, cfg.Backtest.RunName); err != nil {
			log.Fatalf("finishing run: %v", err)
		}
	}

	fmt.Printf("run %s: %d days, %d candidates, %d trades entered, final equity %.2f\n",
		summary.Run, summary.TradingDays, summary.Candidates, summary.TradesEntered, summary.FinalEquity)
}
