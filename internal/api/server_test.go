package api

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"quantapp/internal/domain"
	"quantapp/internal/engine"
	"quantapp/internal/gather"
	"quantapp/internal/strategy"
	"quantapp/internal/strategy/builtins"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRunner() *engine.Runner {
	closes := []float64{10, 11, 12, 10, 8, 13}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC), Close: c}
	}
	src := gather.NewStaticSource()
	src.Add("TEST", "Test Corp", bars)
	reg := strategy.NewRegistry()
	builtins.Register(reg)
	return engine.NewRunner(src, src, reg)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recordingObserver) ObserveRun(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

// dialService starts the service on an in-memory listener and returns a
// connected client.
func dialService(t *testing.T, obs RunObserver) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewBacktestService(testRunner(), obs, discardLogger()).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func validParams() engine.Params {
	return engine.Params{
		Symbol:         "TEST",
		Start:          "2024-01-01",
		End:            "2024-01-31",
		ShortWindow:    2,
		LongWindow:     3,
		InitialCapital: 1000,
	}
}

func TestGRPCRun(t *testing.T) {
	obs := &recordingObserver{}
	client := dialService(t, obs)

	rep, err := client.Run(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, "TEST", rep.Symbol)
	assert.Equal(t, "Test Corp", rep.CompanyName)
	require.NotNil(t, rep.Result)
	assert.Equal(t, 2, rep.Result.Summary.NumberOfTrades)
	assert.InDelta(t, -0.2, rep.Result.Summary.TotalReturn, 1e-12)
	assert.Len(t, rep.Result.Trace, 6)
	assert.Equal(t, []string{"ok"}, obs.statuses)
}

func TestGRPCRunErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*engine.Params)
		code   codes.Code
	}{
		{"invalid", func(p *engine.Params) { p.InitialCapital = -1 }, codes.InvalidArgument},
		{"unknown strategy", func(p *engine.Params) { p.Strategy = "nope" }, codes.InvalidArgument},
		{"no data", func(p *engine.Params) { p.Symbol = "NOPE" }, codes.NotFound},
	}
	client := dialService(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := client.Run(context.Background(), p)
			assert.Equal(t, tt.code, status.Code(err), "err %v", err)
		})
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{domain.InvalidInput("op", -1, "x"), codes.InvalidArgument},
		{domain.DataUnavailable("op", nil, "x"), codes.NotFound},
		{domain.DegenerateInput("op", "total_return", 0, "x"), codes.FailedPrecondition},
		{context.Canceled, codes.Canceled},
		{io.ErrUnexpectedEOF, codes.Internal},
	}
	for _, tt := range tests {
		st := status.Convert(toStatus(tt.err))
		assert.Equal(t, tt.code, st.Code(), "err %v", tt.err)
	}
	assert.Contains(t, status.Convert(toStatus(domain.DegenerateInput("op", "m", 0, "x"))).Message(), "DegenerateInput: ")
}

func TestGRPCStrategies(t *testing.T) {
	client := dialService(t, nil)
	names, err := client.Strategies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"buy-and-hold", "sma-cross"}, names)
}

func TestServerShutdown(t *testing.T) {
	svc := NewBacktestService(testRunner(), nil, discardLogger())
	s := NewServer("127.0.0.1:0", "127.0.0.1:0", http.NotFoundHandler(), svc, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
