package domain

import (
	"context"
	"time"
)

// CatalogSource отдаёт контент витрины из CMS.
type CatalogSource interface {
	FetchActiveProducts(ctx context.Context) ([]Product, error)
	// FetchLogo возвращает URL логотипа или пустую строку.
	FetchLogo(ctx context.Context) (string, error)
	FetchAboutInfo(ctx context.Context) (AboutInfo, error)
}

// OrderPersister записывает заказ в систему учёта. nil означает, что заказ принят.
type OrderPersister interface {
	CreateOrder(ctx context.Context, submission OrderSubmission) error
}

// OrderNotifier доставляет сводку заказа операторам.
type OrderNotifier interface {
	NotifyOrder(ctx context.Context, notification OrderNotification) error
}

// PreferenceStore — долговременное хранилище настроек клиента.
type PreferenceStore interface {
	// Get возвращает значение или ErrPreferenceNotFound.
	Get(ctx context.Context, clientID, key string) (string, error)
	Set(ctx context.Context, clientID, key, value string) error
}

// OrderRepository описывает требования к локальному журналу заказов.
type OrderRepository interface {
	// Create сохраняет заказ. Повторный токен даёт ErrOrderAlreadyExists.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetByToken ищет заказ по токену попытки оформления.
	GetByToken(ctx context.Context, token string) (Order, error)
	// ListRecent возвращает последние заказы, новые первыми.
	ListRecent(ctx context.Context, limit int) ([]Order, error)
}

// OutboxPublisher доставляет событие outbox в брокер.
type OutboxPublisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository хранит события до доставки вместе с состоянием повторов.
type OutboxRepository interface {
	// Enqueue сохраняет событие, доступное для доставки сразу.
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// Due возвращает до limit ожидающих событий, чей AvailableAt не позже now, старые первыми.
	Due(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	// Ack отмечает событие доставленным.
	Ack(ctx context.Context, id string) error
	// Defer увеличивает счётчик попыток и откладывает событие до availableAt.
	Defer(ctx context.Context, id string, availableAt time.Time, lastErr string) error
	// Bury переводит событие в dead, больше оно не выдаётся.
	Bury(ctx context.Context, id string, lastErr string) error
	Stats(ctx context.Context) (OutboxStats, error)
}

// AttemptRepository хранит попытки оформления по токену.
type AttemptRepository interface {
	// Reserve регистрирует токен в статусе pending. Если токен уже есть, возвращает
	// сохранённую попытку вместе с ErrAttemptExists или ErrAttemptFingerprintMismatch.
	Reserve(ctx context.Context, token, fingerprint string, expiresAt time.Time) (SubmissionAttempt, error)
	Get(ctx context.Context, token string) (SubmissionAttempt, error)
	// Resolve закрывает попытку итоговым статусом.
	Resolve(ctx context.Context, token string, status AttemptStatus, reason string) error
	// Release снимает незакрытую попытку, чтобы тот же токен можно было отправить снова.
	// Закрытую попытку не трогает и возвращает ErrAttemptNotFound.
	Release(ctx context.Context, token string) error
	// Purge удаляет до limit попыток, истёкших к моменту before; limit <= 0 снимает ограничение.
	Purge(ctx context.Context, before time.Time, limit int) (int, error)
}
