package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"orbx/internal/config"
	"orbx/internal/domain"
	"orbx/internal/gather/us"
	"orbx/internal/store"
	"orbx/internal/universe"
	"orbx/internal/util"
)

func main() {
	rebuild := flag.Bool("rebuild", false, "regenerate universe files from the daily bar store")
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

	universeDir := filepath.Join(cfg.Storage.DataDir, string(domain.MarketUS), "universe")

	if *rebuild {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		pstore := store.NewParquetStore(cfg.Storage.DataDir)
		if err := us.RebuildUniverse(ctx, pstore, universeDir); err != nil {
			log.Fatalf("rebuilding universe: %v", err)
		}
		fmt.Println("universe files rebuilt")
		return
	}

	// Default: list universe dates with symbol counts.
	allow := universe.NewAllowlist(universeDir, false)
	dates, err := allow.ListDates()
	if err != nil {
		log.Fatalf("listing universe dates: %v", err)
	}
	if len(dates) == 0 {
		fmt.Println("no universe files found")
		return
	}

	for _, date := range dates {
		symbols, err := universe.ReadSymbolFile(filepath.Join(universeDir, date+".txt"))
		if err != nil {
			log.Fatalf("reading universe file for %s: %v", date, err)
		}
		fmt.Printf("%s  %d symbols\n", date, len(symbols))
	}
}
