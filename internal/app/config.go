package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	log "github.com/sirupsen/logrus"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"

	// OrderSinkRemote отправляет заказы в API бэкенда.
	OrderSinkRemote = "remote"
	// OrderSinkLocal записывает заказы в собственное хранилище.
	OrderSinkLocal = "local"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config описывает настройки запуска витрины.
type Config struct {
	HTTPAddr    string `env:"SIMOSH_HTTP_ADDR"    envDefault:":8080"`
	MetricsAddr string `env:"SIMOSH_METRICS_ADDR" envDefault:":9090"`
	GRPCAddr    string `env:"SIMOSH_GRPC_ADDR"    envDefault:":50051"`

	LogLevel  string `env:"SIMOSH_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"SIMOSH_LOG_FORMAT" envDefault:"text"`

	BackendURL     string        `env:"SIMOSH_BACKEND_URL"     envDefault:"https://codebyz.online"`
	BackendTimeout time.Duration `env:"SIMOSH_BACKEND_TIMEOUT" envDefault:"10s"`

	TelegramAPIURL   string   `env:"SIMOSH_TELEGRAM_API_URL"   envDefault:"https://api.telegram.org"`
	TelegramBotToken string   `env:"SIMOSH_TELEGRAM_BOT_TOKEN"`
	TelegramChatIDs  []string `env:"SIMOSH_TELEGRAM_CHAT_IDS"  envSeparator:","`
	OrderAdminURL    string   `env:"SIMOSH_ORDER_ADMIN_URL"`

	OrderSink  string `env:"SIMOSH_ORDER_SINK"  envDefault:"remote"`
	AdminToken string `env:"SIMOSH_ADMIN_TOKEN"`

	StorageDriver       string `env:"SIMOSH_STORAGE_DRIVER"        envDefault:"memory"`
	PostgresDSN         string `env:"SIMOSH_POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"SIMOSH_POSTGRES_AUTO_MIGRATE" envDefault:"true"`
	PostgresMaxConns    int    `env:"SIMOSH_POSTGRES_MAX_CONNS"    envDefault:"10"`

	KafkaBrokers  []string `env:"SIMOSH_KAFKA_BROKERS"   envSeparator:","`
	KafkaClientID string   `env:"SIMOSH_KAFKA_CLIENT_ID" envDefault:"simosh-storefront"`
	KafkaTopic    string   `env:"SIMOSH_KAFKA_TOPIC"     envDefault:"simosh.order.events"`
	AMQPURL       string   `env:"SIMOSH_AMQP_URL"`
	AMQPQueue     string   `env:"SIMOSH_AMQP_QUEUE"      envDefault:"simosh.order.events"`

	OutboxPollInterval  time.Duration `env:"SIMOSH_OUTBOX_POLL_INTERVAL"   envDefault:"1s"`
	OutboxBatchSize     int           `env:"SIMOSH_OUTBOX_BATCH_SIZE"      envDefault:"100"`
	OutboxMaxAttempts   int           `env:"SIMOSH_OUTBOX_MAX_ATTEMPTS"    envDefault:"5"`
	OutboxRetryDelay    time.Duration `env:"SIMOSH_OUTBOX_RETRY_DELAY"     envDefault:"1s"`
	OutboxMaxRetryDelay time.Duration `env:"SIMOSH_OUTBOX_MAX_RETRY_DELAY" envDefault:"5m"`

	AttemptTTL            time.Duration `env:"SIMOSH_ATTEMPT_TTL"              envDefault:"24h"`
	AttemptPurgeInterval  time.Duration `env:"SIMOSH_ATTEMPT_PURGE_INTERVAL"   envDefault:"1m"`
	AttemptPurgeBatchSize int           `env:"SIMOSH_ATTEMPT_PURGE_BATCH_SIZE" envDefault:"500"`

	SessionTTL             time.Duration `env:"SIMOSH_SESSION_TTL"              envDefault:"2h"`
	SessionSweepInterval   time.Duration `env:"SIMOSH_SESSION_SWEEP_INTERVAL"   envDefault:"1m"`
	CatalogRefreshInterval time.Duration `env:"SIMOSH_CATALOG_REFRESH_INTERVAL" envDefault:"5m"`
	SubmitTimeout          time.Duration `env:"SIMOSH_SUBMIT_TIMEOUT"           envDefault:"30s"`
	NotifyTimeout          time.Duration `env:"SIMOSH_NOTIFY_TIMEOUT"           envDefault:"15s"`
	SecureCookie           bool          `env:"SIMOSH_SECURE_COOKIE"            envDefault:"false"`
}

// DefaultConfig возвращает значения по умолчанию без чтения окружения.
func DefaultConfig() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// LoadConfig читает конфигурацию из переменных окружения и проверяет её.
func LoadConfig() (Config, error) {
	return loadConfig(nil)
}

func loadConfig(environment map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("SIMOSH_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.OrderSink {
	case OrderSinkRemote, OrderSinkLocal:
	default:
		errs = append(errs, fmt.Errorf("unsupported order sink %q", c.OrderSink))
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.AMQPURL) != "" {
		errs = append(errs, errors.New("configure either SIMOSH_KAFKA_BROKERS or SIMOSH_AMQP_URL, not both"))
	}
	if strings.TrimSpace(c.TelegramBotToken) != "" && len(c.TelegramChatIDs) == 0 {
		errs = append(errs, errors.New("SIMOSH_TELEGRAM_CHAT_IDS is required when a bot token is set"))
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox batch size and max attempts must be positive"))
	}
	if c.OutboxRetryDelay > c.OutboxMaxRetryDelay {
		errs = append(errs, errors.New("SIMOSH_OUTBOX_RETRY_DELAY exceeds SIMOSH_OUTBOX_MAX_RETRY_DELAY"))
	}
	if c.SubmitTimeout <= 0 {
		errs = append(errs, errors.New("SIMOSH_SUBMIT_TIMEOUT must be positive"))
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, errors.New("SIMOSH_NOTIFY_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// SetupLogger настраивает глобальный logrus по конфигурации.
func SetupLogger(cfg Config) {
	if cfg.LogFormat == LogFormatJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
