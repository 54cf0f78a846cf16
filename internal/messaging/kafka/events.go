package kafka

import (
	"encoding/json"
	"time"

	"github.com/simosh/storefront/internal/domain"
)

const (
	// TopicOrderEvents — topic событий заказов по умолчанию.
	TopicOrderEvents = "simosh.order.events"
	// TopicDeadLetterQueue — topic событий, доставку которых прекратили.
	TopicDeadLetterQueue = "simosh.dlq"
)

const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderAttempt       = "x-attempt"
	HeaderOriginalTopic = "x-original-topic"
)

// Envelope — обёртка, в которой событие outbox уходит в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
	PublishedAt   time.Time       `json:"publishedAt"`
}

// NewEnvelope упаковывает событие. Не-JSON полезная нагрузка уходит строкой.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(msg.Payload))
	}
	occurred := msg.CreatedAt
	if occurred.IsZero() {
		occurred = publishedAt
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    occurred.UTC(),
		PublishedAt:   publishedAt.UTC(),
	}
}
