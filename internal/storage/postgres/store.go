package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// DefaultApplicationName попадает в pg_stat_activity.
const DefaultApplicationName = "simosh-storefront"

// opTimeout ограничивает одну операцию репозитория.
const opTimeout = 5 * time.Second

var errNotInitialized = errors.New("postgres store is not initialized")

type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
	pingTimeout time.Duration
	appName     string
}

// Option настраивает пул соединений.
type Option func(*poolSettings)

// WithPoolSize задаёт число открытых и простаивающих соединений.
func WithPoolSize(open, idle int) Option {
	return func(s *poolSettings) {
		if open > 0 {
			s.maxOpen = open
		}
		if idle >= 0 {
			s.maxIdle = min(idle, s.maxOpen)
		}
	}
}

// WithApplicationName задаёт application_name сессии.
func WithApplicationName(name string) Option {
	return func(s *poolSettings) {
		s.appName = name
	}
}

// WithPingTimeout ограничивает проверку доступности базы.
func WithPingTimeout(timeout time.Duration) Option {
	return func(s *poolSettings) {
		if timeout > 0 {
			s.pingTimeout = timeout
		}
	}
}

// Store — пул соединений с PostgreSQL через pgx stdlib.
type Store struct {
	db          *sql.DB
	pingTimeout time.Duration
}

// Open разбирает DSN, открывает пул и проверяет, что база отвечает.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	settings := poolSettings{
		maxOpen:     10,
		maxIdle:     5,
		maxLifetime: 30 * time.Minute,
		maxIdleTime: 5 * time.Minute,
		pingTimeout: 5 * time.Second,
		appName:     DefaultApplicationName,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if settings.appName != "" {
		connCfg.RuntimeParams["application_name"] = settings.appName
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(settings.maxOpen)
	db.SetMaxIdleConns(settings.maxIdle)
	db.SetConnMaxLifetime(settings.maxLifetime)
	db.SetConnMaxIdleTime(settings.maxIdleTime)

	store := &Store{db: db, pingTimeout: settings.pingTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает пул для репозиториев и мигратора.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// StatsCollector отдаёт метрики пула (go_sql_* с меткой db_name).
func (s *Store) StatsCollector(dbName string) prometheus.Collector {
	return collectors.NewDBStatsCollector(s.db, dbName)
}

// EnsureSchema применяет все недостающие миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
