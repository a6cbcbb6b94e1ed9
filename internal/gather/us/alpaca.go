// Package us fetches US equity daily bars and reference data from Alpaca.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantapp/internal/domain"
	"quantapp/internal/gather"
	"quantapp/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var (
	_ gather.BarSource  = (*AlpacaSource)(nil)
	_ gather.NameSource = (*AlpacaSource)(nil)
)

// barClient is the part of *marketdata.Client used here.
type barClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// assetClient is the part of *alpaca.Client used here.
type assetClient interface {
	GetAsset(symbol string) (*alpaca.Asset, error)
}

// AlpacaOptions configures an AlpacaSource.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	DataURL   string // market-data API, empty for the default
	BaseURL   string // trading API, used for asset lookups
	// Feed is "sip" or "iex". Free accounts only have iex.
	Feed string
	// Adjustment is "raw", "split", "dividend" or "all".
	Adjustment      string
	RateLimitPerMin int
	MaxRetries      int
	RetryDelay      time.Duration
}

// AlpacaSource fetches daily bars for US equities via the Alpaca market-data
// API, with retries and client-side rate limiting.
type AlpacaSource struct {
	bars       barClient
	assets     assetClient
	feed       marketdata.Feed
	adjustment marketdata.Adjustment
	limiter    *util.RateLimiter
	retries    int
	retryDelay time.Duration
	log        *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource from opts.
func NewAlpacaSource(opts AlpacaOptions) *AlpacaSource {
	mdOpts := marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.DataURL != "" {
		mdOpts.BaseURL = opts.DataURL
	}

	return newAlpacaSource(
		marketdata.NewClient(mdOpts),
		alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		opts,
	)
}

func newAlpacaSource(bars barClient, assets assetClient, opts AlpacaOptions) *AlpacaSource {
	feed := marketdata.Feed(opts.Feed)
	if feed == "" {
		feed = marketdata.IEX
	}
	adj := marketdata.Adjustment(opts.Adjustment)
	if adj == "" {
		adj = marketdata.All
	}
	retries := opts.MaxRetries
	if retries < 1 {
		retries = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	return &AlpacaSource{
		bars:       bars,
		assets:     assets,
		feed:       feed,
		adjustment: adj,
		limiter:    util.NewRateLimiter(opts.RateLimitPerMin, 1),
		retries:    retries,
		retryDelay: delay,
		log:        slog.Default().With("source", "alpaca"),
	}
}

// FetchBars fetches daily bars for symbol over the inclusive date range.
// Transient API errors are retried; an empty response is DataUnavailable.
func (s *AlpacaSource) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: s.adjustment,
		Start:      util.DateOf(start),
		End:        util.EndOfDay(end),
		Feed:       s.feed,
	}

	var raw []marketdata.Bar
	err := util.Retry(ctx, s.retries, s.retryDelay, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		raw, err = s.bars.GetBars(symbol, req)
		if err != nil {
			s.log.Warn("GetBars failed", "symbol", symbol, "error", err)
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.DataUnavailable("fetch", err, "fetching %s from alpaca", symbol)
	}
	if len(raw) == 0 {
		return nil, domain.DataUnavailable("fetch", nil, "alpaca returned no bars for %s between %s and %s",
			symbol, start.Format(util.DateLayout), end.Format(util.DateLayout))
	}

	// Daily bars are stamped at midnight New York time, which falls on the
	// same UTC date.
	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:     symbol,
			Timestamp:  util.DateOf(ab.Timestamp),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	s.log.Debug("fetched bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

// CompanyName returns the asset name Alpaca reports for symbol.
func (s *AlpacaSource) CompanyName(ctx context.Context, symbol string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	asset, err := s.assets.GetAsset(strings.ToUpper(symbol))
	if err != nil {
		return "", fmt.Errorf("GetAsset %s: %w", symbol, err)
	}
	return asset.Name, nil
}
