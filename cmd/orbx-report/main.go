package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"orbx/internal/config"
	"orbx/internal/report"
	"orbx/internal/store"
	"orbx/internal/util"
)

func main() {
	run := flag.String("run", "", "run name to report on (defaults to the configured run)")
	flag.Parse()

	cfgPath := "config/orbx.yaml"
	if p := os.Getenv("ORBX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	name := *run
	if name == "" {
		name = cfg.Backtest.RunName
	}
	if name == "" {
		log.Fatalf("no run name given (use -run or set backtest.run_name)")
	}

	ctx := context.Background()
	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	rows, err := pstore.ReadDailyPerformance(ctx, name)
	if err != nil {
		log.Fatalf("reading daily performance for %s: %v", name, err)
	}
	curve, err := pstore.ReadEquityCurve(ctx, name)
	if err != nil {
		log.Fatalf("reading equity curve for %s: %v", name, err)
	}

	summary, err := report.Build(name, rows, curve)
	if err != nil {
		log.Fatalf("building report: %v", err)
	}

	fmt.Print(summary.Render())
}
