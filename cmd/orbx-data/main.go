package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"orbx/internal/config"
	"orbx/internal/gather"
	"orbx/internal/gather/us"
	"orbx/internal/store"
	"orbx/internal/util"
)

func main() {
	job := flag.String("job", "daily", "gathering job to run: daily or minute")
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

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	var gatherer gather.Gatherer
	switch *job {
	case "daily":
		gatherer = us.NewDailyBarGatherer(
			cfg.Alpaca.APIKey,
			cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL,
			pstore,
			cfg.Gather.Daily.BatchSize,
			cfg.Gather.Daily.MaxWorkers,
			cfg.Gather.Daily.StartDate,
			cfg.Gather.Daily.SymbolsCSV,
			cfg.Alpaca.BaseURL,
		)
	case "minute":
		gatherer = us.NewMinuteBarGatherer(
			cfg.Alpaca.APIKey,
			cfg.Alpaca.APISecret,
			cfg.Alpaca.DataURL,
			pstore,
			cfg.Gather.Minute.BatchSize,
			cfg.Gather.Minute.MaxWorkers,
			cfg.Gather.Minute.RateLimitPerMin,
			cfg.Gather.Minute.StartDate,
			cfg.Alpaca.BaseURL,
		)
	default:
		log.Fatalf("unknown job %q (want daily or minute)", *job)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("starting %s gatherer\n", gatherer.Name())
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gatherer error: %v", err)
	}
}
