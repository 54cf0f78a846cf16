package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/storage/memory"
	"github.com/simosh/storefront/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные по SIMOSH_STORAGE_DRIVER.
type runtimeDependencies struct {
	orders      domain.OrderRepository
	outboxRepo  domain.OutboxRepository
	attempts    domain.AttemptRepository
	preferences domain.PreferenceStore
	pgStore     *postgres.Store
	// poolMetrics зарегистрирован в prometheus.DefaultRegisterer, пока открыт pgStore.
	poolMetrics prometheus.Collector
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.pgStore == nil {
		return
	}
	if d.poolMetrics != nil {
		prometheus.Unregister(d.poolMetrics)
	}
	if err := d.pgStore.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}

// initRuntimeDependencies открывает хранилища и при необходимости применяет миграции.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		return &runtimeDependencies{
			orders:      memory.NewOrderRepository(),
			outboxRepo:  memory.NewOutboxRepository(),
			attempts:    memory.NewAttemptRepository(),
			preferences: memory.NewPreferenceStore(),
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN,
			postgres.WithPoolSize(cfg.PostgresMaxConns, cfg.PostgresMaxConns/2),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		return &runtimeDependencies{
			orders:      postgres.NewOrderRepository(store),
			outboxRepo:  postgres.NewOutboxRepository(store),
			attempts:    postgres.NewAttemptRepository(store),
			preferences: postgres.NewPreferenceStore(store),
			pgStore:     store,
			poolMetrics: registerPoolMetrics(store, logger),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func registerPoolMetrics(store *postgres.Store, logger *log.Entry) prometheus.Collector {
	collector := store.StatsCollector("simosh")
	if err := prometheus.Register(collector); err != nil {
		logger.WithError(err).Warn("postgres pool metrics are not exported")
		return nil
	}
	return collector
}
