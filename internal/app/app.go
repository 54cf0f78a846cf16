// Package app собирает зависимости витрины и управляет её жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/simosh/storefront/internal/cart"
	"github.com/simosh/storefront/internal/catalog"
	"github.com/simosh/storefront/internal/checkout"
	"github.com/simosh/storefront/internal/gate"
	healthcheck "github.com/simosh/storefront/internal/health"
	"github.com/simosh/storefront/internal/httpapi"
	"github.com/simosh/storefront/internal/i18n"
	"github.com/simosh/storefront/internal/metrics"
	"github.com/simosh/storefront/internal/service/attempts"
	"github.com/simosh/storefront/internal/service/outbox"
	"github.com/simosh/storefront/internal/session"
	"github.com/simosh/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает HTTP API, метрики, gRPC health и фоновые воркеры и ждёт отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	publishers := initOutboxPublishers(cfg, logger)
	defer publishers.close()

	checkoutMetrics := metrics.NewCheckoutMetrics()
	messages := i18n.Default()
	client := newBackendClient(cfg, logger)

	catalogCache := catalog.NewCache(catalog.NewLoader(client, logger.WithField("layer", "catalog")), cfg.CatalogRefreshInterval)
	persister := buildPersister(cfg, deps, client, publishers.enabled(), logger)
	notifier := buildNotifier(cfg, logger)

	registry := session.NewRegistry(func(store *cart.Store) *checkout.Workflow {
		return checkout.NewWorkflow(store, persister, notifier,
			checkout.WithLogger(logger.WithField("layer", "checkout")),
			checkout.WithMetrics(checkoutMetrics),
			checkout.WithMessages(messages),
			checkout.WithSubmitTimeout(cfg.SubmitTimeout),
			checkout.WithNotifyTimeout(cfg.NotifyTimeout),
		)
	},
		session.WithLogger(logger.WithField("layer", "session")),
		session.WithMetrics(checkoutMetrics),
		session.WithGate(gate.New(deps.preferences, logger.WithField("layer", "gate"))),
		session.WithPreferences(deps.preferences),
		session.WithTTL(cfg.SessionTTL),
		session.WithSweepInterval(cfg.SessionSweepInterval),
	)

	apiOptions := []httpapi.Option{
		httpapi.WithLogger(logger.WithField("layer", "http")),
		httpapi.WithMetrics(checkoutMetrics),
		httpapi.WithMessages(messages),
		httpapi.WithSecureCookie(cfg.SecureCookie),
	}
	if cfg.OrderSink == OrderSinkLocal {
		apiOptions = append(apiOptions, httpapi.WithOrderLookup(deps.orders, cfg.AdminToken))
	}
	api := httpapi.NewServer(registry, catalogCache, apiOptions...)

	healthHandler := newHealthHandler(deps, catalogCache)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	startWorker := func(name string, run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			logger.WithField("worker", name).Debug("worker started")
			run(workerCtx)
		}()
	}
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	startWorker("catalog", catalogCache.Run)
	startWorker("sessions", registry.Run)
	startWorker("attempt-purger", attempts.NewPurger(deps.attempts,
		attempts.WithPurgeLogger(logger.WithField("layer", "attempt-purger")),
		attempts.WithPurgeInterval(cfg.AttemptPurgeInterval),
		attempts.WithPurgeBatchSize(cfg.AttemptPurgeBatchSize),
	).Run)
	if publishers.enabled() {
		workerOptions := []outbox.Option{
			outbox.WithLogger(logger.WithField("layer", "outbox-worker")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryDelays(cfg.OutboxRetryDelay, cfg.OutboxMaxRetryDelay),
		}
		if publishers.dlq != nil {
			workerOptions = append(workerOptions, outbox.WithDeadLetters(publishers.dlq))
		}
		startWorker("outbox", outbox.NewWorker(deps.outboxRepo, publishers.main, workerOptions...).Run)
	}

	grpcServer, healthServer := newGRPCServer(logger)
	startWorker("grpc-health", func(ctx context.Context) {
		syncGRPCHealth(ctx, healthHandler, healthServer, 15*time.Second)
	})

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC health сервер слушает %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, healthServer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, healthServer, logger)
		return err
	}
}

// newHealthHandler регистрирует проверки хранилища, каталога и очереди outbox.
func newHealthHandler(deps *runtimeDependencies, cache *catalog.Cache) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.GetVersion())

	if deps.pgStore != nil {
		h.Register("postgres", healthcheck.CheckFunc(deps.pgStore.Ping), true)
	}
	h.Register("catalog", healthcheck.DegradedFunc(func() (bool, string) {
		snap := cache.Current()
		switch {
		case snap.Fallback.Products:
			return true, "serving built-in products"
		case snap.Stale.Products:
			return true, "serving stale products"
		}
		return false, ""
	}), false)
	h.Register("outbox", healthcheck.CheckFunc(func(ctx context.Context) error {
		_, err := deps.outboxRepo.Stats(ctx)
		return err
	}), false)

	return h
}

// syncGRPCHealth переносит готовность витрины в статус gRPC health.
func syncGRPCHealth(ctx context.Context, checks *healthcheck.Handler, server *health.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status := healthpb.HealthCheckResponse_SERVING
		if !checks.Ready(ctx) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if ctx.Err() != nil {
			return
		}
		server.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// newGRPCServer создаёт gRPC-сервер с health, reflection и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(grpcServer *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
