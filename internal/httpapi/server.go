package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"quantapp/internal/domain"
	"quantapp/internal/engine"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Runner is the part of *engine.Runner the API needs.
type Runner interface {
	Run(ctx context.Context, p engine.Params) (*engine.Report, error)
	Strategies() []string
}

// Server serves the backtest HTTP API.
type Server struct {
	runner  Runner
	metrics *Metrics
	log     *slog.Logger
}

// NewServer creates a new HTTP API server. metrics may be shared with other
// front ends.
func NewServer(runner Runner, metrics *Metrics, log *slog.Logger) *Server {
	return &Server{
		runner:  runner,
		metrics: metrics,
		log:     log,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/backtests", s.handleRunBacktest)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := ErrorKind(err)
	writeJSON(w, StatusFor(err), ErrorResponse{Error: kind, Message: err.Error()})
}

// ErrorKind returns the domain failure kind of err, or KindInternal.
func ErrorKind(err error) string {
	if k := domain.KindOf(err); k != "" {
		return k
	}
	return KindInternal
}

// StatusFor maps err onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDataUnavailable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDegenerateInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	began := time.Now()

	var p engine.Params
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		err = domain.InvalidInput("decode", -1, "malformed request body: %v", err)
		s.metrics.ObserveRun(ErrorKind(err), time.Since(began))
		writeError(w, err)
		return
	}

	rep, err := s.runner.Run(r.Context(), p)
	if err != nil {
		kind := ErrorKind(err)
		s.metrics.ObserveRun(kind, time.Since(began))
		if kind == KindInternal {
			s.log.Error("backtest failed", "symbol", p.Symbol, "error", err)
		} else {
			s.log.Info("backtest rejected", "symbol", p.Symbol, "kind", kind, "error", err)
		}
		writeError(w, err)
		return
	}

	s.metrics.ObserveRun("ok", time.Since(began))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StrategiesResponse{Strategies: s.runner.Strategies()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
