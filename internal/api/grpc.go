// Package api hosts the network front ends: the gRPC backtest service and
// the process-level server that runs it next to the HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"quantapp/internal/domain"
	"quantapp/internal/engine"
)

// Fully qualified gRPC names.
const (
	ServiceName          = "quantapp.v1.Backtester"
	RunMethod            = "/" + ServiceName + "/Run"
	ListStrategiesMethod = "/" + ServiceName + "/ListStrategies"
)

const (
	internalKind    = "Internal"
	strategiesField = "strategies"
)

// Runner is the part of *engine.Runner the service needs.
type Runner interface {
	Run(ctx context.Context, p engine.Params) (*engine.Report, error)
	Strategies() []string
}

// RunObserver records the outcome of each run, e.g. in Prometheus.
type RunObserver interface {
	ObserveRun(status string, elapsed time.Duration)
}

// BacktestServer is the server API for the Backtester service. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP
// API.
type BacktestServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// BacktestServiceDesc describes the Backtester service for grpc.Server.
var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "ListStrategies", Handler: listStrategiesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "quantapp/v1/backtester.proto",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Run(ctx, req.(*structpb.Struct))
	})
}

func listStrategiesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).ListStrategies(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListStrategiesMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).ListStrategies(ctx, req.(*structpb.Struct))
	})
}

// ---------------------------------------------------------------------------
// Service implementation
// ---------------------------------------------------------------------------

// Compile-time interface check.
var _ BacktestServer = (*BacktestService)(nil)

// BacktestService implements BacktestServer on top of an engine runner.
type BacktestService struct {
	runner   Runner
	observer RunObserver
	log      *slog.Logger
}

// NewBacktestService creates a BacktestService. observer may be nil.
func NewBacktestService(runner Runner, observer RunObserver, log *slog.Logger) *BacktestService {
	return &BacktestService{
		runner:   runner,
		observer: observer,
		log:      log,
	}
}

// Register attaches the service to s.
func (s *BacktestService) Register(gs *grpc.Server) {
	gs.RegisterService(&BacktestServiceDesc, s)
}

// Run executes one backtest. The request holds engine.Params fields and the
// response is the full report.
func (s *BacktestService) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	began := time.Now()

	var p engine.Params
	err := fromStruct(req, &p)
	if err != nil {
		err = domain.InvalidInput("decode", -1, "malformed request: %v", err)
	}
	var rep *engine.Report
	if err == nil {
		rep, err = s.runner.Run(ctx, p)
	}
	if err != nil {
		kind := kindOf(err)
		s.observe(kind, began)
		s.log.Info("grpc backtest failed", "symbol", p.Symbol, "kind", kind, "error", err)
		return nil, toStatus(err)
	}

	out, err := toStruct(rep)
	if err != nil {
		s.observe(internalKind, began)
		return nil, status.Errorf(codes.Internal, "encoding report: %v", err)
	}
	s.observe("ok", began)
	return out, nil
}

// ListStrategies returns {"strategies": [...]}.
func (s *BacktestService) ListStrategies(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names := s.runner.Strategies()
	list := make([]any, len(names))
	for i, n := range names {
		list[i] = n
	}
	out, err := structpb.NewStruct(map[string]any{strategiesField: list})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding strategies: %v", err)
	}
	return out, nil
}

func (s *BacktestService) observe(kind string, began time.Time) {
	if s.observer != nil {
		s.observer.ObserveRun(kind, time.Since(began))
	}
}

// ---------------------------------------------------------------------------
// Errors and conversion
// ---------------------------------------------------------------------------

func kindOf(err error) string {
	if k := domain.KindOf(err); k != "" {
		return k
	}
	return internalKind
}

// toStatus maps err onto a gRPC status. The message keeps the kind prefix
// so clients can recover it.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrDataUnavailable):
		code = codes.NotFound
	case errors.Is(err, domain.ErrDegenerateInput):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Errorf(code, "%s: %v", kindOf(err), err)
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON encoding. Unknown fields are
// rejected.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding struct: %w", err)
	}
	return nil
}
