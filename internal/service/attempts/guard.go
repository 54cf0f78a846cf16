// Package attempts не даёт одной попытке оформления заказа уйти на бэкенд дважды.
package attempts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simosh/storefront/internal/domain"
)

const defaultAttemptTTL = 24 * time.Hour

var guardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "simosh_submission_attempt_decisions_total",
	Help: "Submission attempt decisions grouped by outcome.",
}, []string{"outcome"})

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithGuardLogger задаёт logger.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTTL задаёт срок, в течение которого токен попытки помнится.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// Guard оборачивает OrderPersister и пропускает каждый токен попытки не более одного раза.
// Повтор получает исход первой попытки.
type Guard struct {
	next   domain.OrderPersister
	repo   domain.AttemptRepository
	logger *log.Entry
	ttl    time.Duration
	now    func() time.Time
}

// NewGuard оборачивает persister.
func NewGuard(next domain.OrderPersister, repo domain.AttemptRepository, options ...GuardOption) *Guard {
	g := &Guard{
		next:   next,
		repo:   repo,
		logger: log.WithField("component", "attempt-guard"),
		ttl:    defaultAttemptTTL,
		now:    time.Now,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// CreateOrder передаёт заявку дальше. Заявка без токена уходит без проверки.
func (g *Guard) CreateOrder(ctx context.Context, submission domain.OrderSubmission) error {
	if g.next == nil {
		return errors.New("attempt guard: persister is not configured")
	}

	token := strings.TrimSpace(submission.Token)
	if token == "" || g.repo == nil {
		guardDecisionsTotal.WithLabelValues("unguarded").Inc()
		return g.next.CreateOrder(ctx, submission)
	}

	fingerprint, err := Fingerprint(submission)
	if err != nil {
		return err
	}
	logger := g.logger.WithField("token", token)

	existing, err := g.repo.Reserve(ctx, token, fingerprint, g.now().UTC().Add(g.ttl))
	switch {
	case err == nil:
		guardDecisionsTotal.WithLabelValues("reserved").Inc()
	case errors.Is(err, domain.ErrAttemptFingerprintMismatch):
		guardDecisionsTotal.WithLabelValues("mismatch").Inc()
		logger.Warn("attempt token reused for a different order")
		return err
	case errors.Is(err, domain.ErrAttemptExists):
		return g.replay(logger, existing)
	default:
		return fmt.Errorf("reserve attempt: %w", err)
	}

	// Исход фиксируется даже если запрос клиента уже отменён.
	resolveCtx := context.WithoutCancel(ctx)

	if err := g.next.CreateOrder(ctx, submission); err != nil {
		g.settleFailure(resolveCtx, logger, token, err)
		return err
	}

	if err := g.repo.Resolve(resolveCtx, token, domain.AttemptAccepted, ""); err != nil {
		logger.WithError(err).Warn("failed to record accepted attempt")
	}
	return nil
}

// settleFailure запоминает только окончательный отказ. Если исход неизвестен
// (5xx, таймаут, обрыв), резерв снимается и токен можно отправить повторно.
func (g *Guard) settleFailure(ctx context.Context, logger *log.Entry, token string, cause error) {
	if errors.Is(cause, domain.ErrOrderRejected) {
		guardDecisionsTotal.WithLabelValues("rejected").Inc()
		if err := g.repo.Resolve(ctx, token, domain.AttemptRejected, cause.Error()); err != nil {
			logger.WithError(err).Warn("failed to record rejected attempt")
		}
		return
	}

	guardDecisionsTotal.WithLabelValues("released").Inc()
	if err := g.repo.Release(ctx, token); err != nil {
		logger.WithError(err).Warn("failed to release attempt after retryable failure")
		return
	}
	logger.WithError(cause).Info("attempt released for retry")
}

func (g *Guard) replay(logger *log.Entry, attempt domain.SubmissionAttempt) error {
	switch attempt.Status {
	case domain.AttemptAccepted:
		guardDecisionsTotal.WithLabelValues("replayed").Inc()
		logger.Info("duplicate submission answered from stored attempt")
		return nil
	case domain.AttemptPending:
		guardDecisionsTotal.WithLabelValues("in_flight").Inc()
		return domain.ErrSubmissionInFlight
	case domain.AttemptRejected:
		guardDecisionsTotal.WithLabelValues("replayed").Inc()
		if attempt.Reason == "" {
			return domain.ErrOrderRejected
		}
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, attempt.Reason)
	default:
		return fmt.Errorf("%w: %q", domain.ErrAttemptStatusInvalid, attempt.Status)
	}
}

// Fingerprint возвращает sha256 от детерминированной protobuf-кодировки заявки.
// Токен в отпечаток не входит.
func Fingerprint(submission domain.OrderSubmission) (string, error) {
	items := make([]any, 0, len(submission.Items))
	for _, item := range submission.Items {
		items = append(items, map[string]any{
			"productId": item.ProductID,
			"quantity":  item.Quantity,
		})
	}

	value, err := structpb.NewStruct(map[string]any{
		"items":       items,
		"status":      string(submission.Status),
		"firstName":   submission.FirstName,
		"lastName":    submission.LastName,
		"phone":       submission.Phone,
		"description": submission.Description,
	})
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

var _ domain.OrderPersister = (*Guard)(nil)
