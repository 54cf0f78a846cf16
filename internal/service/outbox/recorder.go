package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

// Recorder оборачивает OrderPersister и после приёма заказа кладёт order.placed в outbox.
// Ошибка outbox не отменяет принятый заказ.
type Recorder struct {
	next   domain.OrderPersister
	repo   domain.OutboxRepository
	logger *log.Entry
	now    func() time.Time
}

// NewRecorder оборачивает persister.
func NewRecorder(next domain.OrderPersister, repo domain.OutboxRepository, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "outbox-recorder")
	}
	return &Recorder{
		next:   next,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Recorder) CreateOrder(ctx context.Context, submission domain.OrderSubmission) error {
	if r.next == nil {
		return errors.New("outbox recorder: persister is not configured")
	}
	if err := r.next.CreateOrder(ctx, submission); err != nil {
		return err
	}
	if r.repo == nil {
		return nil
	}

	// Заказ уже принят, поэтому отмена клиента не должна терять событие.
	if err := r.record(context.WithoutCancel(ctx), submission); err != nil {
		outboxEnqueueFailures.Inc()
		r.logger.WithError(err).WithField("token", submission.Token).Warn("order accepted but outbox enqueue failed")
	}
	return nil
}

func (r *Recorder) record(ctx context.Context, submission domain.OrderSubmission) error {
	payload, err := json.Marshal(NewOrderPlaced(submission, r.now()))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", EventOrderPlaced, err)
	}

	_, err = r.repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   submission.Token,
		EventType:     EventOrderPlaced,
		Payload:       payload,
	})
	return err
}

var _ domain.OrderPersister = (*Recorder)(nil)
