package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/messaging/amqp"
	"github.com/simosh/storefront/internal/messaging/kafka"
)

// outboxPublishers — транспорт событий outbox и функция его закрытия.
type outboxPublishers struct {
	main  domain.OutboxPublisher
	dlq   domain.OutboxPublisher
	close func()
}

func (p outboxPublishers) enabled() bool {
	return p.main != nil
}

// initOutboxPublishers выбирает Kafka или AMQP. Ошибка подключения не
// останавливает витрину: события просто не публикуются.
func initOutboxPublishers(cfg Config, logger *log.Entry) outboxPublishers {
	none := outboxPublishers{close: func() {}}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger.WithField("layer", "kafka"))
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
			return none
		}
		logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")
		return outboxPublishers{
			main:  kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			dlq:   kafka.NewDLQPublisher(producer, cfg.KafkaTopic),
			close: func() { closeKafka(producer, logger) },
		}
	}

	if url := strings.TrimSpace(cfg.AMQPURL); url != "" {
		publisher, err := amqp.Dial(url, cfg.AMQPQueue, logger.WithField("layer", "amqp"))
		if err != nil {
			logger.WithError(err).Warn("failed to connect to amqp broker, continuing without amqp")
			return none
		}
		dlq, err := publisher.WithQueue(amqp.QueueDeadLetter)
		if err != nil {
			logger.WithError(err).Warn("failed to declare amqp dead letter queue")
		}
		logger.WithField("queue", publisher.Queue()).Info("amqp publisher initialized")
		out := outboxPublishers{
			main: publisher,
			close: func() {
				if err := publisher.Close(); err != nil {
					logger.WithError(err).Warn("failed to close amqp publisher")
				}
			},
		}
		if dlq != nil {
			out.dlq = dlq
		}
		return out
	}

	return none
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
