package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quantapp/internal/config"
	"quantapp/internal/domain"
	"quantapp/internal/engine"
	"quantapp/internal/gather/us"
)

func offlineConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Storage.Backend = backend
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.SQLitePath = filepath.Join(dir, "db", "quantapp.db")
	cfg.Fetch.Offline = true
	return cfg
}

func TestNewOfflineRunsFromCache(t *testing.T) {
	for _, backend := range []string{"sqlite", "parquet"} {
		t.Run(backend, func(t *testing.T) {
			a, err := New(offlineConfig(t, backend))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer a.Close()

			ctx := context.Background()
			var bars []domain.Bar
			for i := 0; i < 30; i++ {
				c := 100 + float64(i%7)
				bars = append(bars, domain.Bar{
					Symbol:    "AAPL",
					Timestamp: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
					Close:     c,
				})
			}
			if err := a.Store.WriteBars(ctx, bars); err != nil {
				t.Fatalf("WriteBars: %v", err)
			}

			rep, err := a.Runner.Run(ctx, engine.Params{
				Symbol: "AAPL", Start: "2022-03-01", End: "2022-03-30",
				ShortWindow: 2, LongWindow: 5, InitialCapital: 10000,
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(rep.Bars) != 30 {
				t.Errorf("got %d bars, want 30", len(rep.Bars))
			}

			_, err = a.Runner.Run(ctx, engine.Params{
				Symbol: "MSFT", Start: "2022-03-01", End: "2022-03-30",
				ShortWindow: 2, LongWindow: 5, InitialCapital: 10000,
			})
			if !errors.Is(err, domain.ErrDataUnavailable) {
				t.Errorf("Run(MSFT) error = %v, want DataUnavailable", err)
			}
		})
	}
}

func TestUpstream(t *testing.T) {
	cfg := config.Defaults()
	cfg.Fetch.Offline = true
	cfg.Alpaca.APIKey, cfg.Alpaca.APISecret = "k", "s"
	if Upstream(cfg) != nil {
		t.Error("offline config should have no upstream")
	}

	cfg.Fetch.Offline = false
	if _, ok := Upstream(cfg).(*us.AlpacaSource); !ok {
		t.Error("credentials should select the Alpaca source")
	}

	cfg.Alpaca.APISecret = ""
	if Upstream(cfg) != nil {
		t.Error("missing secret should disable upstream")
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	if _, _, err := OpenStore(config.Storage{Backend: "mysql"}); err == nil {
		t.Error("OpenStore should reject unknown backends")
	}
}

func TestNewRegistry(t *testing.T) {
	names := NewRegistry().List()
	if len(names) != 2 || names[0] != "buy-and-hold" || names[1] != "sma-cross" {
		t.Errorf("List() = %v", names)
	}
}
