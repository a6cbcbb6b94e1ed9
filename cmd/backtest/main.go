// Command backtest runs a single moving-average crossover backtest and
// prints its summary and chart.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"quantapp/internal/app"
	"quantapp/internal/config"
	"quantapp/internal/domain"
	"quantapp/internal/engine"
	"quantapp/internal/gather"
	"quantapp/internal/report"
	"quantapp/internal/util"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInvalid     = 2
	exitUnavailable = 3
	exitDegenerate  = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// A missing .env file is fine.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath   = fs.String("config", "", "config file (default $QUANTAPP_CONFIG or config/quantapp.yaml)")
		ticker    = fs.String("ticker", "", "ticker symbol")
		start     = fs.String("start", "", "first date, YYYY-MM-DD")
		end       = fs.String("end", "", "last date, YYYY-MM-DD")
		strat     = fs.String("strategy", "", "strategy name")
		short     = fs.Int("short", 0, "short SMA window")
		long      = fs.Int("long", 0, "long SMA window")
		capital   = fs.Float64("capital", 0, "initial capital")
		ppy       = fs.Float64("ppy", 0, "periods per year for annualization")
		csvPath   = fs.String("csv", "", "read bars from this CSV file instead of the cache")
		tracePath = fs.String("trace", "", "write the per-bar portfolio trace to this CSV file")
		offline   = fs.Bool("offline", false, "serve bars from the local cache only")
		chart     = fs.Bool("chart", true, "print the ASCII chart")
		asJSON    = fs.Bool("json", false, "print the full report as JSON")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitInvalid
	}

	path := *cfgPath
	if path == "" {
		path = "config/quantapp.yaml"
		if p := os.Getenv("QUANTAPP_CONFIG"); p != "" {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "error: loading config: %v\n", err)
		return exitFailure
	}

	// Only flags given on the command line override the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ticker":
			cfg.Backtest.Ticker = *ticker
		case "start":
			cfg.Backtest.StartDate = *start
		case "end":
			cfg.Backtest.EndDate = *end
		case "strategy":
			cfg.Backtest.Strategy = *strat
		case "short":
			cfg.Backtest.ShortWindow = *short
		case "long":
			cfg.Backtest.LongWindow = *long
		case "capital":
			cfg.Backtest.InitialCapital = *capital
		case "ppy":
			cfg.Backtest.PeriodsPerYear = *ppy
		case "offline":
			cfg.Fetch.Offline = *offline
		case "chart":
			cfg.Report.Chart = *chart
		}
	})
	if err := cfg.Validate(); err != nil {
		return fail(stderr, err)
	}

	logger := util.NewLogger(stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var runner *engine.Runner
	if *csvPath != "" {
		bars, err := gather.LoadCSV(*csvPath, cfg.Backtest.Ticker)
		if err != nil {
			return fail(stderr, err)
		}
		src := gather.NewStaticSource()
		src.Add(cfg.Backtest.Ticker, "", bars)
		runner = engine.NewRunner(src, nil, app.NewRegistry())
	} else {
		a, err := app.New(cfg)
		if err != nil {
			return fail(stderr, err)
		}
		defer a.Close()
		runner = a.Runner
	}

	b := cfg.Backtest
	rep, err := runner.Run(ctx, engine.Params{
		Symbol:         b.Ticker,
		Start:          b.StartDate,
		End:            b.EndDate,
		Strategy:       b.Strategy,
		ShortWindow:    b.ShortWindow,
		LongWindow:     b.LongWindow,
		InitialCapital: b.InitialCapital,
		PeriodsPerYear: b.PeriodsPerYear,
	})
	if err != nil {
		return fail(stderr, err)
	}

	if *tracePath != "" {
		if err := writeTrace(*tracePath, rep); err != nil {
			return fail(stderr, err)
		}
		logger.Info("trace written", "path", *tracePath, "rows", len(rep.Result.Trace))
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fail(stderr, err)
		}
		return exitOK
	}

	if err := report.WriteSummary(stdout, rep); err != nil {
		return fail(stderr, err)
	}
	if cfg.Report.Chart {
		fmt.Fprintln(stdout)
		fmt.Fprint(stdout, report.RenderChart(rep, cfg.Report.ChartWidth, cfg.Report.ChartHeight))
	}
	return exitOK
}

func writeTrace(path string, rep *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	if err := report.WriteTraceCSV(f, rep.Result.Trace); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// fail prints err as "error: <Kind>: <message>" and returns the matching
// exit code.
func fail(stderr io.Writer, err error) int {
	kind := domain.KindOf(err)
	if kind == "" {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stderr, "error: %s: %v\n", kind, err)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return exitInvalid
	case errors.Is(err, domain.ErrDataUnavailable):
		return exitUnavailable
	default:
		return exitDegenerate
	}
}
