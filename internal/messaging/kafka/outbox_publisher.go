package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/simosh/storefront/internal/domain"
)

// TopicPublisher публикует события outbox в один topic.
type TopicPublisher struct {
	producer *Producer
	topic    string
	// origin заполняется у DLQ-паблишера.
	origin string
	now    func() time.Time
}

// NewOutboxPublisher создаёт паблишер событий заказа. Пустой topic означает simosh.order.events.
func NewOutboxPublisher(producer *Producer, topic string) *TopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &TopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDLQPublisher создаёт паблишер в simosh.dlq; origin — topic, откуда пришло событие.
func NewDLQPublisher(producer *Producer, origin string) *TopicPublisher {
	if origin == "" {
		origin = TopicOrderEvents
	}
	return &TopicPublisher{producer: producer, topic: TopicDeadLetterQueue, origin: origin, now: time.Now}
}

// Topic возвращает topic паблишера.
func (p *TopicPublisher) Topic() string {
	return p.topic
}

func (p *TopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return domain.ErrPublisherClosed
	}

	value, err := json.Marshal(NewEnvelope(msg, p.now()))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	// события одного заказа попадают в одну партицию
	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}

	headers := map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderAttempt:       strconv.Itoa(msg.Attempts + 1),
	}
	if p.origin != "" {
		headers[HeaderOriginalTopic] = p.origin
	}

	return p.producer.Send(ctx, Record{Topic: p.topic, Key: key, Value: value, Headers: headers})
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
