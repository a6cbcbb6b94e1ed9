package us

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantapp/internal/domain"
)

type fakeBars struct {
	calls int
	fail  int // fail the first n calls
	bars  []marketdata.Bar
	req   marketdata.GetBarsRequest
}

func (f *fakeBars) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.calls++
	f.req = req
	if f.calls <= f.fail {
		return nil, errors.New("503 service unavailable")
	}
	return f.bars, nil
}

type fakeAssets struct{ name string }

func (f fakeAssets) GetAsset(symbol string) (*alpaca.Asset, error) {
	if f.name == "" {
		return nil, errors.New("asset not found")
	}
	return &alpaca.Asset{Symbol: symbol, Name: f.name}, nil
}

type fakeCalendar struct{ days []alpaca.CalendarDay }

func (f fakeCalendar) GetCalendar(_ alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	return f.days, nil
}

func testOptions() AlpacaOptions {
	return AlpacaOptions{MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestAlpacaSourceFetchBars(t *testing.T) {
	fb := &fakeBars{
		fail: 1,
		bars: []marketdata.Bar{
			{Timestamp: time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC), Open: 187, High: 188, Low: 183, Close: 185.64, Volume: 82488700, TradeCount: 1000, VWAP: 185.4},
			{Timestamp: time.Date(2024, 1, 3, 5, 0, 0, 0, time.UTC), Open: 184, High: 185, Low: 183, Close: 184.25, Volume: 58414500, TradeCount: 900, VWAP: 184.3},
		},
	}
	src := newAlpacaSource(fb, fakeAssets{}, testOptions())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	bars, err := src.FetchBars(context.Background(), "aapl", start, end)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if fb.calls != 2 {
		t.Errorf("GetBars called %d times, want 2 (one retry)", fb.calls)
	}
	if fb.req.TimeFrame != marketdata.OneDay {
		t.Errorf("TimeFrame = %v, want OneDay", fb.req.TimeFrame)
	}
	if fb.req.Feed != marketdata.IEX || fb.req.Adjustment != marketdata.All {
		t.Errorf("defaults: feed %q adjustment %q, want iex/all", fb.req.Feed, fb.req.Adjustment)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", bars[0].Symbol)
	}
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC); !bars[0].Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", bars[0].Timestamp, want)
	}
	if bars[1].Volume != 58414500 || bars[1].Close != 184.25 {
		t.Errorf("bar[1] = %+v", bars[1])
	}
}

func TestAlpacaSourceEmptyIsDataUnavailable(t *testing.T) {
	src := newAlpacaSource(&fakeBars{}, fakeAssets{}, testOptions())
	_, err := src.FetchBars(context.Background(), "ZZZZ",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Errorf("FetchBars error = %v, want DataUnavailable", err)
	}
}

func TestAlpacaSourceRetriesExhausted(t *testing.T) {
	fb := &fakeBars{fail: 10}
	src := newAlpacaSource(fb, fakeAssets{}, testOptions())
	_, err := src.FetchBars(context.Background(), "AAPL",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Errorf("FetchBars error = %v, want DataUnavailable", err)
	}
	if fb.calls != 3 {
		t.Errorf("GetBars called %d times, want 3", fb.calls)
	}
}

func TestAlpacaSourceCompanyName(t *testing.T) {
	src := newAlpacaSource(&fakeBars{}, fakeAssets{name: "Apple Inc. Common Stock"}, testOptions())
	name, err := src.CompanyName(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("CompanyName: %v", err)
	}
	if name != "Apple Inc. Common Stock" {
		t.Errorf("CompanyName = %q", name)
	}

	src = newAlpacaSource(&fakeBars{}, fakeAssets{}, testOptions())
	if _, err := src.CompanyName(context.Background(), "ZZZZ"); err == nil {
		t.Error("CompanyName should fail for unknown asset")
	}
}

func TestLatestFinishedTradingDay(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	cal := fakeCalendar{days: []alpaca.CalendarDay{
		{Date: "2024-07-02"},
		{Date: "2024-07-03"},
		{Date: "2024-07-05"},
	}}

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"after close", time.Date(2024, 7, 5, 21, 0, 0, 0, et), "2024-07-05"},
		{"before close", time.Date(2024, 7, 5, 12, 0, 0, 0, et), "2024-07-03"},
		{"holiday", time.Date(2024, 7, 4, 12, 0, 0, 0, et), "2024-07-03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LatestFinishedTradingDay(cal, tt.now)
			if err != nil {
				t.Fatalf("LatestFinishedTradingDay: %v", err)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("got %s, want %s", got.Format("2006-01-02"), tt.want)
			}
		})
	}
}
