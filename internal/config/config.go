package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"quantapp/internal/domain"
	"quantapp/internal/util"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantapp.
type Config struct {
	Backtest Backtest `yaml:"backtest"`
	Storage  Storage  `yaml:"storage"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Fetch    Fetch    `yaml:"fetch"`
	Logging  Logging  `yaml:"logging"`
	Server   Server   `yaml:"server"`
	Report   Report   `yaml:"report"`
}

// Backtest holds the default run parameters. Command-line flags override
// them.
type Backtest struct {
	Ticker         string  `yaml:"ticker"`
	StartDate      string  `yaml:"start_date"`
	EndDate        string  `yaml:"end_date"`
	Strategy       string  `yaml:"strategy"`
	ShortWindow    int     `yaml:"short_window"`
	LongWindow     int     `yaml:"long_window"`
	InitialCapital float64 `yaml:"initial_capital"`
	PeriodsPerYear float64 `yaml:"periods_per_year"`
}

// Storage holds paths for the local bar cache.
type Storage struct {
	// Backend is "sqlite" or "parquet".
	Backend    string `yaml:"backend"`
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	BaseURL    string `yaml:"base_url"`
	DataURL    string `yaml:"data_url"`
	Feed       string `yaml:"feed"`
	Adjustment string `yaml:"adjustment"`
}

// Fetch controls how bars are pulled from upstream.
type Fetch struct {
	// Offline serves bars from the local cache only.
	Offline         bool          `yaml:"offline"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxWorkers      int           `yaml:"max_workers"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Report controls terminal output.
type Report struct {
	ChartWidth  int  `yaml:"chart_width"`
	ChartHeight int  `yaml:"chart_height"`
	Chart       bool `yaml:"chart"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Backtest: Backtest{
			Ticker:         "AAPL",
			StartDate:      "2018-01-01",
			EndDate:        "2023-01-01",
			Strategy:       "sma-cross",
			ShortWindow:    40,
			LongWindow:     100,
			InitialCapital: 100000,
			PeriodsPerYear: 252,
		},
		Storage: Storage{
			Backend:    "sqlite",
			DataDir:    "data",
			SQLitePath: "data/quantapp.db",
		},
		Alpaca: Alpaca{
			BaseURL:    "https://paper-api.alpaca.markets",
			Feed:       "iex",
			Adjustment: "all",
		},
		Fetch: Fetch{
			RateLimitPerMin: 180,
			MaxRetries:      3,
			RetryDelay:      time.Second,
			MaxWorkers:      4,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090},
		Report:  Report{ChartWidth: 100, ChartHeight: 20, Chart: true},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Defaults and then applies environment variable overrides. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("QUANTAPP_STORAGE"); v != "" {
		cfg.Storage.Backend = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUANTAPP_TICKER"); v != "" {
		cfg.Backtest.Ticker = v
	}
	if v := os.Getenv("QUANTAPP_OFFLINE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Fetch.Offline = b
		}
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the backtest parameters and storage settings. Failures are
// domain.ErrInvalidInput.
func (c *Config) Validate() error {
	const op = "config"
	b := c.Backtest
	if b.Ticker == "" {
		return domain.InvalidInput(op, -1, "ticker is required")
	}
	start, err := util.ParseDate(b.StartDate)
	if err != nil {
		return domain.InvalidInput(op, -1, "start date: %v", err)
	}
	end, err := util.ParseDate(b.EndDate)
	if err != nil {
		return domain.InvalidInput(op, -1, "end date: %v", err)
	}
	if !start.Before(end) {
		return domain.InvalidInput(op, -1, "start date %s must be before end date %s", b.StartDate, b.EndDate)
	}
	if b.ShortWindow < 1 {
		return domain.InvalidInput(op, -1, "short window %d must be at least 1", b.ShortWindow)
	}
	if b.LongWindow <= b.ShortWindow {
		return domain.InvalidInput(op, -1, "long window %d must exceed short window %d", b.LongWindow, b.ShortWindow)
	}
	if !(b.InitialCapital > 0) {
		return domain.InvalidInput(op, -1, "initial capital %v must be positive", b.InitialCapital)
	}
	if b.PeriodsPerYear < 0 {
		return domain.InvalidInput(op, -1, "periods per year %v must be positive", b.PeriodsPerYear)
	}
	switch c.Storage.Backend {
	case "sqlite", "parquet":
	default:
		return domain.InvalidInput(op, -1, "unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
