package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/phone"
)

// Recorder — локальная система учёта: принимает заявку и пишет её в журнал заказов.
type Recorder struct {
	repo   domain.OrderRepository
	logger *log.Entry
	now    func() time.Time
	newID  func() string
}

// NewRecorder создаёт persister поверх OrderRepository.
func NewRecorder(repo domain.OrderRepository, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "order-recorder")
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateOrder проверяет заявку и сохраняет её.
// Повтор с уже записанным токеном считается принятым.
func (r *Recorder) CreateOrder(ctx context.Context, submission domain.OrderSubmission) error {
	if r.repo == nil {
		return errors.New("order recorder: repository is not configured")
	}
	errs := submission.Validate()
	if submission.Phone != "" && !phone.IsValidFullPhone(submission.Phone) {
		errs = append(errs, domain.ErrPhoneInvalid)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrOrderRejected, errors.Join(errs...))
	}

	order := domain.Order{
		ID:         r.newID(),
		Token:      submission.Token,
		Submission: submission,
		CreatedAt:  r.now().UTC(),
	}
	if order.Token == "" {
		order.Token = order.ID
		order.Submission.Token = order.ID
	}

	err := r.repo.Create(ctx, order)
	if errors.Is(err, domain.ErrOrderAlreadyExists) {
		r.logger.WithField("token", order.Token).Info("order already recorded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}

	r.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"token":    order.Token,
		"items":    len(submission.Items),
	}).Info("order recorded")
	return nil
}

// Recent возвращает последние записанные заказы.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]domain.Order, error) {
	if r.repo == nil {
		return nil, errors.New("order recorder: repository is not configured")
	}
	return r.repo.ListRecent(ctx, limit)
}

var _ domain.OrderPersister = (*Recorder)(nil)
