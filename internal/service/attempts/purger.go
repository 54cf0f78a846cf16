package attempts

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

const (
	defaultPurgeInterval  = 10 * time.Minute
	defaultPurgeBatchSize = 500
	// maxBatchesPerPass ограничивает один проход, остальное добирается на следующем тике.
	maxBatchesPerPass = 20
)

var (
	purgePassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simosh_submission_attempt_purge_passes_total",
		Help: "Purge passes over expired submission attempts grouped by result.",
	}, []string{"result"})
	purgedAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "simosh_submission_attempts_purged_total",
		Help: "Expired submission attempts removed from storage.",
	})
)

// PurgerOption настраивает Purger.
type PurgerOption func(*Purger)

// WithPurgeLogger задаёт logger.
func WithPurgeLogger(logger *log.Entry) PurgerOption {
	return func(p *Purger) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPurgeInterval задаёт паузу между проходами.
func WithPurgeInterval(interval time.Duration) PurgerOption {
	return func(p *Purger) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithPurgeBatchSize задаёт размер одного удаления.
func WithPurgeBatchSize(size int) PurgerOption {
	return func(p *Purger) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// Purger периодически удаляет попытки с истёкшим сроком.
type Purger struct {
	repo      domain.AttemptRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewPurger создаёт воркер очистки попыток.
func NewPurger(repo domain.AttemptRepository, options ...PurgerOption) *Purger {
	p := &Purger{
		repo:      repo,
		logger:    log.WithField("component", "attempt-purger"),
		interval:  defaultPurgeInterval,
		batchSize: defaultPurgeBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Run чистит хранилище сразу и затем по таймеру до отмены ctx.
func (p *Purger) Run(ctx context.Context) {
	if p.repo == nil {
		p.logger.Warn("attempt purger is disabled: repository is nil")
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.pass(ctx)
			timer.Reset(p.interval)
		}
	}
}

func (p *Purger) pass(ctx context.Context) {
	removed, err := p.PurgeOnce(ctx, p.now())
	switch {
	case err == nil:
		purgePassesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, context.Canceled):
		return
	default:
		purgePassesTotal.WithLabelValues("error").Inc()
		p.logger.WithError(err).WithField("removed", removed).Warn("attempt purge pass failed")
		return
	}
	if removed > 0 {
		p.logger.WithField("removed", removed).Debug("expired submission attempts purged")
	}
}

// PurgeOnce удаляет попытки, истёкшие к before, порциями по batchSize.
// Возвращает число удалённых записей, в том числе при ошибке.
func (p *Purger) PurgeOnce(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	for range maxBatchesPerPass {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		n, err := p.repo.Purge(ctx, before, p.batchSize)
		removed += n
		purgedAttemptsTotal.Add(float64(n))
		if err != nil {
			return removed, err
		}
		if n < p.batchSize {
			break
		}
	}
	return removed, nil
}
