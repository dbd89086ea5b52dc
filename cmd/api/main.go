package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cimillas/expo-stands/internal/app"
	"github.com/cimillas/expo-stands/internal/broker"
	"github.com/cimillas/expo-stands/internal/clock"
	"github.com/cimillas/expo-stands/internal/config"
	"github.com/cimillas/expo-stands/internal/lease"
	"github.com/cimillas/expo-stands/internal/monitoring"
	"github.com/cimillas/expo-stands/internal/storage/memory"
	"github.com/cimillas/expo-stands/internal/storage/postgres"
	transporthttp "github.com/cimillas/expo-stands/internal/transport/http"
	"github.com/cimillas/expo-stands/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepLeaseKey   = "expo-stands:sweeper"
)

// store is everything the services need; both backends provide it.
type store interface {
	app.ReservationRepository
	app.SettlementRepository
	app.SweepRepository
	app.QueryRepository
	app.CatalogRepository
	Ping(ctx context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st, closeStore, err := openStore(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ready := map[string]transporthttp.Pinger{"store": st}
	opts := []app.Option{app.WithHoldTTL(cfg.HoldTTL), app.WithLogger(logger)}

	if cfg.RabbitMQURL != "" {
		pub, err := broker.NewPublisher(cfg.RabbitMQURL, cfg.Exchange, broker.WithLogger(logger))
		if err != nil {
			// Messages are best effort; the service runs without them.
			logger.Warn("broker unavailable, state changes will not be published", "error", err)
		} else {
			defer pub.Close()
			opts = append(opts, app.WithPublisher(pub))
		}
	}

	sweepOpts := []app.SweeperOption{
		app.WithSweepInterval(cfg.SweepInterval),
		app.WithSweepBatchSize(cfg.SweepBatchSize),
	}
	if cfg.RedisURL != "" {
		client, err := lease.NewClient(startupCtx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, every replica will sweep", "error", err)
		} else {
			defer client.Close()
			l := lease.New(client, sweepLeaseKey, replicaID(), cfg.SweepLockTTL)
			defer func() { _ = l.Release(context.Background()) }()
			sweepOpts = append(sweepOpts, app.WithLeader(l))
			ready["redis"] = pingFunc(func(ctx context.Context) error { return lease.HealthCheck(ctx, client) })
		}
	}

	clk := clock.NewSystem()
	reservations := app.NewReservationService(st, clk, opts...)
	settlement := app.NewSettlementService(st, clk, opts...)
	sweeper := app.NewSweeper(st, clk, sweepOpts, opts...)

	var metrics http.Handler
	if cfg.MetricsEnabled {
		metrics = monitoring.Handler()
	}
	router := transporthttp.NewRouter(transporthttp.Deps{
		Reservations: reservations,
		Settlement:   settlement,
		Queries:      app.NewQueryService(st),
		Catalog:      app.NewCatalogService(st, clk),
		JWTSecret:    []byte(cfg.JWTSecret),
		Ready:        ready,
		Metrics:      metrics,
	})
	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, router), logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		_ = sweeper.Run(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("api listening", "port", cfg.Port, "store", cfg.Store)
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
		stop()
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "error", err)
	}
	<-sweepDone
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store (DEV_MODE), data is lost on restart and writes are serialized")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewStore(pool), pool.Close, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// replicaID names this process as a lease owner.
func replicaID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "api"
	}
	return host + "-" + uuid.NewString()[:8]
}
