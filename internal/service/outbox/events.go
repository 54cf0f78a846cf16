package outbox

import (
	"encoding/json"
	"time"

	"github.com/simosh/storefront/internal/domain"
)

const (
	// AggregateOrder — тип агрегата для событий заказа.
	AggregateOrder = "order"
	// EventOrderPlaced публикуется после того, как система учёта приняла заказ.
	EventOrderPlaced = "order.placed"
	// EventDeadLetter — событие, доставку которого прекратили.
	EventDeadLetter = "outbox.dead_letter"
)

// OrderPlaced — полезная нагрузка события order.placed.
type OrderPlaced struct {
	Token       string             `json:"token"`
	Status      domain.OrderStatus `json:"status"`
	Items       []domain.OrderItem `json:"items"`
	FirstName   string             `json:"firstName"`
	LastName    string             `json:"lastName"`
	Phone       string             `json:"phone"`
	Description string             `json:"description,omitempty"`
	PlacedAt    time.Time          `json:"placedAt"`
}

// NewOrderPlaced строит событие по принятой заявке.
func NewOrderPlaced(submission domain.OrderSubmission, placedAt time.Time) OrderPlaced {
	return OrderPlaced{
		Token:       submission.Token,
		Status:      submission.Status,
		Items:       append([]domain.OrderItem(nil), submission.Items...),
		FirstName:   submission.FirstName,
		LastName:    submission.LastName,
		Phone:       submission.Phone,
		Description: submission.Description,
		PlacedAt:    placedAt.UTC(),
	}
}

// DeadLetter описывает событие, которое не удалось доставить.
type DeadLetter struct {
	OutboxID    string          `json:"outboxId"`
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	BuriedAt    time.Time       `json:"buriedAt"`
}

// deadLetterMessage упаковывает исходное событие в конверт для DLQ.
func deadLetterMessage(msg domain.OutboxMessage, attempts int, cause error, buriedAt time.Time) (domain.OutboxMessage, error) {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		raw, err := json.Marshal(string(msg.Payload))
		if err != nil {
			return domain.OutboxMessage{}, err
		}
		payload = raw
	}

	body, err := json.Marshal(DeadLetter{
		OutboxID:    msg.ID,
		EventType:   msg.EventType,
		AggregateID: msg.AggregateID,
		Attempts:    attempts,
		Error:       cause.Error(),
		Payload:     payload,
		EnqueuedAt:  msg.CreatedAt.UTC(),
		BuriedAt:    buriedAt.UTC(),
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}

	return domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     EventDeadLetter,
		Payload:       body,
		Attempts:      attempts,
		CreatedAt:     msg.CreatedAt,
	}, nil
}
