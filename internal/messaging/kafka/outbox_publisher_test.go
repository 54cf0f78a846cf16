package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

func headerValue(msg *sarama.ProducerMessage, name string) (string, bool) {
	for _, h := range msg.Headers {
		if string(h.Key) == name {
			return string(h.Value), true
		}
	}
	return "", false
}

func TestTopicPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "token-123" {
			t.Errorf("expected aggregate id as key, got %s", key)
		}
		value, _ := msg.Value.Encode()
		var env Envelope
		if err := json.Unmarshal(value, &env); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		if env.EventType != "order.placed" || env.ID != "outbox-1" {
			t.Errorf("unexpected envelope %+v", env)
		}
		if attempt, _ := headerValue(msg, HeaderAttempt); attempt != "3" {
			t.Errorf("expected attempt header 3, got %q", attempt)
		}
		if _, ok := headerValue(msg, HeaderOriginalTopic); ok {
			t.Error("main topic must not carry the original topic header")
		}
		return nil
	})

	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-outbox-publisher-test"))
	publisher := NewOutboxPublisher(producer, "")
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("expected default topic, got %s", publisher.Topic())
	}

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "token-123",
		EventType:     "order.placed",
		Payload:       []byte(`{"total":50000}`),
		Attempts:      2,
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicPublisher_DLQAddsOriginalTopic(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			t.Errorf("unexpected topic %s", msg.Topic)
		}
		if origin, _ := headerValue(msg, HeaderOriginalTopic); origin != "shop.orders" {
			t.Errorf("unexpected original topic header %q", origin)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "outbox-2" {
			t.Errorf("message id is the fallback key, got %s", key)
		}
		return nil
	})

	publisher := NewDLQPublisher(NewProducerFromSync(mockProducer, nil), "shop.orders")
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-2", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("publish to dlq: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicOrderEvents)

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-3",
		AggregateType: "order",
		AggregateID:   "token-234",
		EventType:     "order.placed",
		Payload:       []byte(`{}`),
	})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTopicPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-4"}); !errors.Is(err, domain.ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
}
