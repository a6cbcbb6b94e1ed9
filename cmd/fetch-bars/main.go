// Command fetch-bars fills the local bar cache from Alpaca for a set of
// symbols.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantapp/internal/app"
	"quantapp/internal/config"
	"quantapp/internal/gather"
	"quantapp/internal/gather/us"
	"quantapp/internal/util"
)

func main() {
	symbolList := flag.String("symbols", "", "comma-separated symbols (default: config ticker)")
	symbolsCSV := flag.String("symbols-csv", "", "CSV file whose first column lists symbols")
	start := flag.String("start", "", "first date, YYYY-MM-DD (default: config start date)")
	end := flag.String("end", "", "last date, YYYY-MM-DD (default: latest finished trading day)")
	workers := flag.Int("workers", 0, "concurrent fetches (default: config fetch.max_workers)")
	force := flag.Bool("force", false, "warm even if the range was already completed")
	reset := flag.Bool("reset", false, "forget recorded empty symbols and completed ranges")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := "config/quantapp.yaml"
	if p := os.Getenv("QUANTAPP_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Fetch.Offline {
		log.Fatalf("fetch-bars needs upstream access; unset fetch.offline")
	}

	logger := util.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	var symbols []string
	switch {
	case *symbolsCSV != "":
		symbols, err = us.LoadCSVSymbols(*symbolsCSV)
		if err != nil {
			log.Fatalf("failed to load symbols: %v", err)
		}
	case *symbolList != "":
		symbols = us.ParseSymbols(*symbolList)
	default:
		symbols = []string{cfg.Backtest.Ticker}
	}

	startDate := cfg.Backtest.StartDate
	if *start != "" {
		startDate = *start
	}
	first, err := util.ParseDate(startDate)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}

	var last time.Time
	if *end != "" {
		if last, err = util.ParseDate(*end); err != nil {
			log.Fatalf("invalid end date: %v", err)
		}
	} else {
		cal := us.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		if last, err = us.LatestFinishedTradingDay(cal, time.Now()); err != nil {
			log.Fatalf("resolving latest trading day: %v", err)
		}
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	progress, err := gather.OpenProgress(filepath.Join(cfg.Storage.DataDir, "cache"))
	if err != nil {
		log.Fatalf("failed to open progress: %v", err)
	}
	defer progress.Close()
	if *reset {
		if err := progress.Reset(); err != nil {
			log.Fatalf("failed to reset progress: %v", err)
		}
	}

	rng := gather.DateRange{Start: first, End: last}
	if !*force && progress.IsCompleted(rng) {
		logger.Info("range already warmed, use -force to refetch", "range", rng.String())
		return
	}

	n := cfg.Fetch.MaxWorkers
	if *workers > 0 {
		n = *workers
	}
	warmer := gather.NewCacheWarmer(a.Source, symbols, rng, n)
	warmer.SetProgress(progress)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := warmer.Run(ctx); err != nil {
		progress.Close()
		a.Close()
		log.Fatalf("%s failed: %v", warmer.Name(), err)
	}
}
