package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

const (
	// QueueOrderEvents — очередь событий заказов.
	QueueOrderEvents = "simosh.order.events"
	// QueueDeadLetter — очередь сообщений, которые не удалось опубликовать.
	QueueDeadLetter = "simosh.dlq"

	defaultPublishTimeout = 5 * time.Second
)

// Channel — часть *amqp.Channel, нужная паблишеру.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher публикует outbox-сообщения в durable-очередь RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel Channel
	queue   string
	timeout time.Duration
	logger  *log.Entry
	// borrowed: канал принадлежит другому паблишеру.
	borrowed bool
}

// Dial подключается к брокеру и объявляет очередь.
func Dial(url, queue string, logger *log.Entry) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	p, err := NewPublisher(ch, queue, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher объявляет очередь на готовом канале.
func NewPublisher(ch Channel, queue string, logger *log.Entry) (*Publisher, error) {
	if ch == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}
	if queue == "" {
		queue = QueueOrderEvents
	}
	if logger == nil {
		logger = log.WithField("component", "amqp-publisher")
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &Publisher{
		channel: ch,
		queue:   q.Name,
		timeout: defaultPublishTimeout,
		logger:  logger,
	}, nil
}

// WithQueue объявляет ещё одну очередь на том же канале. Close у результата
// ничего не закрывает.
func (p *Publisher) WithQueue(queue string) (*Publisher, error) {
	if p == nil || p.channel == nil {
		return nil, domain.ErrPublisherClosed
	}
	q, err := p.channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &Publisher{
		channel:  p.channel,
		queue:    q.Name,
		timeout:  p.timeout,
		logger:   p.logger,
		borrowed: true,
	}, nil
}

// Queue возвращает имя объявленной очереди.
func (p *Publisher) Queue() string {
	return p.queue
}

// Publish кладёт событие в очередь как persistent-сообщение и ждёт не дольше timeout.
func (p *Publisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.channel == nil {
		return domain.ErrPublisherClosed
	}

	body := msg.Payload
	if !json.Valid(body) {
		raw, err := json.Marshal(string(body))
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = raw
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msg.ID,
		CorrelationId: msg.AggregateID,
		Type:          msg.EventType,
		Timestamp:     time.Now().UTC(),
		Headers: amqp.Table{
			"aggregate_type": msg.AggregateType,
			"attempt":        int32(msg.Attempts + 1),
		},
		Body: body,
	}
	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, publishing); err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"queue":     p.queue,
			"outbox_id": msg.ID,
		}).Warn("rabbitmq rejected publish")
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	if p == nil || p.borrowed {
		return nil
	}
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

var _ domain.OutboxPublisher = (*Publisher)(nil)
