package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = time.Second
	defaultMaxRetryDelay  = 5 * time.Minute
	defaultPublishTimeout = 10 * time.Second
)

var (
	outboxDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simosh_outbox_deliveries_total",
		Help: "Outbox delivery outcomes: delivered, deferred, buried, dead_letter_failed.",
	}, []string{"outcome"})
	outboxBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "simosh_outbox_backlog",
		Help: "Outbox messages grouped by state.",
	}, []string{"state"})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simosh_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest undelivered outbox message.",
	})
	outboxEnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simosh_outbox_enqueue_failures_total",
		Help: "Accepted orders whose order.placed event could not be written to the outbox.",
	})
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDeadLetters задаёт транспорт для событий, доставку которых прекратили.
func WithDeadLetters(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.deadLetters = publisher
	}
}

// WithPollInterval задаёт паузу между проходами.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт число событий за проход.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число доставок, после которого событие хоронится.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryDelays задаёт первую паузу перед повтором и её потолок.
// Пауза удваивается с каждой неудачей.
func WithRetryDelays(base, ceiling time.Duration) Option {
	return func(w *Worker) {
		if base >= 0 {
			w.retryBase = base
		}
		if ceiling > 0 {
			w.retryCeiling = ceiling
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) {
		if clock != nil {
			w.now = clock
		}
	}
}

// Worker доставляет события outbox в брокер. Каждое событие публикуется не
// чаще одного раза за проход; состояние повторов хранится в репозитории,
// поэтому переживает перезапуск.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	deadLetters  domain.OutboxPublisher
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryBase    time.Duration
	retryCeiling time.Duration
	now          func() time.Time
}

// PassResult считает исходы одного прохода.
type PassResult struct {
	Delivered int
	Deferred  int
	Buried    int
}

// NewWorker создаёт воркер доставки.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-worker"),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		retryBase:    defaultRetryBaseDelay,
		retryCeiling: defaultMaxRetryDelay,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run выполняет проходы до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repository or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.WithError(err).Warn("outbox pass failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Pass забирает созревшие события и пробует доставить каждое один раз.
func (w *Worker) Pass(ctx context.Context) (PassResult, error) {
	var result PassResult
	defer w.observeBacklog(ctx)

	due, err := w.repo.Due(ctx, w.now(), w.batchSize)
	if err != nil {
		return result, fmt.Errorf("load due outbox messages: %w", err)
	}

	for _, msg := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		logger := w.logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
			"attempt":    msg.Attempts + 1,
		})

		publishErr := w.publish(ctx, msg)
		switch {
		case publishErr == nil:
			result.Delivered++
			outboxDeliveries.WithLabelValues("delivered").Inc()
			if err := w.repo.Ack(ctx, msg.ID); err != nil {
				logger.WithError(err).Warn("delivered outbox message could not be acknowledged")
			}
		case msg.Attempts+1 >= w.maxAttempts:
			result.Buried++
			outboxDeliveries.WithLabelValues("buried").Inc()
			logger.WithError(publishErr).Error("outbox message exhausted its attempts")
			w.bury(ctx, logger, msg, publishErr)
		default:
			result.Deferred++
			outboxDeliveries.WithLabelValues("deferred").Inc()
			next := w.now().Add(w.backoff(msg.Attempts + 1))
			logger.WithError(publishErr).WithField("retry_at", next).Warn("outbox delivery deferred")
			if err := w.repo.Defer(ctx, msg.ID, next, publishErr.Error()); err != nil {
				logger.WithError(err).Warn("failed to defer outbox message")
			}
		}
	}

	if result.Delivered > 0 {
		w.logger.WithField("delivered", result.Delivered).Debug("outbox pass completed")
	}
	return result, nil
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return w.publisher.Publish(ctx, msg)
}

func (w *Worker) bury(ctx context.Context, logger *log.Entry, msg domain.OutboxMessage, cause error) {
	if w.deadLetters != nil {
		letter, err := deadLetterMessage(msg, msg.Attempts+1, cause, w.now())
		if err == nil {
			err = w.deadLetters.Publish(ctx, letter)
		}
		if err != nil {
			outboxDeliveries.WithLabelValues("dead_letter_failed").Inc()
			logger.WithError(err).Warn("failed to publish dead letter")
		}
	}
	if err := w.repo.Bury(ctx, msg.ID, cause.Error()); err != nil {
		logger.WithError(err).Warn("failed to bury outbox message")
	}
}

// backoff возвращает паузу после failures неудач: base, 2·base, 4·base, не больше потолка.
func (w *Worker) backoff(failures int) time.Duration {
	delay := w.retryBase
	for i := 1; i < failures && delay < w.retryCeiling; i++ {
		delay *= 2
	}
	return min(delay, w.retryCeiling)
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(context.WithoutCancel(ctx))
	if err != nil {
		w.logger.WithError(err).Debug("failed to collect outbox backlog")
		return
	}
	outboxBacklog.WithLabelValues("pending").Set(float64(stats.Pending))
	outboxBacklog.WithLabelValues("dead").Set(float64(stats.Dead))
	if stats.Pending == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}
	outboxOldestPendingAge.Set(max(0, w.now().Sub(stats.OldestPendingAt).Seconds()))
}
