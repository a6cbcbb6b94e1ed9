// Command backtest-server serves backtests over HTTP and gRPC.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"quantapp/internal/api"
	"quantapp/internal/app"
	"quantapp/internal/config"
	"quantapp/internal/httpapi"
	"quantapp/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/quantapp.yaml"
	if p := os.Getenv("QUANTAPP_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	metrics := httpapi.NewMetrics()
	handler := httpapi.NewServer(a.Runner, metrics, logger.With("component", "http")).Handler()
	svc := api.NewBacktestService(a.Runner, metrics, logger.With("component", "grpc"))

	var grpcAddr string
	if cfg.Server.GRPCPort > 0 {
		grpcAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	}
	srv := api.NewServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		grpcAddr,
		handler,
		svc,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("backtest-server starting", "storage", cfg.Storage.Backend, "offline", cfg.Fetch.Offline)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
