// Package app assembles the bar store, data sources and engine runner from
// configuration for the command-line entry points.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"quantapp/internal/config"
	"quantapp/internal/engine"
	"quantapp/internal/gather"
	"quantapp/internal/gather/us"
	"quantapp/internal/store"
	"quantapp/internal/strategy"
	"quantapp/internal/strategy/builtins"
)

// App holds the wired components of one process.
type App struct {
	Store  store.BarStore
	Source *gather.CachedSource
	Runner *engine.Runner

	closer io.Closer
}

// NewRegistry returns a registry holding every builtin strategy.
func NewRegistry() *strategy.Registry {
	reg := strategy.NewRegistry()
	builtins.Register(reg)
	return reg
}

// OpenStore opens the bar store selected by cfg.Storage.Backend. The
// returned closer may be nil.
func OpenStore(cfg config.Storage) (store.BarStore, io.Closer, error) {
	switch cfg.Backend {
	case "parquet":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating data dir: %w", err)
		}
		return store.NewParquetStore(cfg.DataDir), nil, nil
	case "sqlite", "":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating sqlite dir: %w", err)
			}
		}
		st, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Upstream returns the Alpaca source configured by cfg, or nil when running
// offline or without credentials.
func Upstream(cfg *config.Config) gather.BarSource {
	if cfg.Fetch.Offline {
		slog.Info("offline mode, serving cached bars only")
		return nil
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		slog.Warn("no Alpaca credentials, serving cached bars only")
		return nil
	}
	return us.NewAlpacaSource(us.AlpacaOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		BaseURL:         cfg.Alpaca.BaseURL,
		Feed:            cfg.Alpaca.Feed,
		Adjustment:      cfg.Alpaca.Adjustment,
		RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
		MaxRetries:      cfg.Fetch.MaxRetries,
		RetryDelay:      cfg.Fetch.RetryDelay,
	})
}

// New wires the store, the caching source and the runner from cfg.
func New(cfg *config.Config) (*App, error) {
	st, closer, err := OpenStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	src := gather.NewCachedSource(st, Upstream(cfg))

	return &App{
		Store:  st,
		Source: src,
		Runner: engine.NewRunner(src, src, NewRegistry()),
		closer: closer,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
