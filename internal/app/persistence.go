package app

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/client/backend"
	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/notify"
	"github.com/simosh/storefront/internal/notify/telegram"
	"github.com/simosh/storefront/internal/service/attempts"
	"github.com/simosh/storefront/internal/service/orders"
	"github.com/simosh/storefront/internal/service/outbox"
)

func newBackendClient(cfg Config, logger *log.Entry) *backend.Client {
	return backend.New(cfg.BackendURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeout}),
		backend.WithLogger(logger.WithField("layer", "backend")),
	)
}

// buildPersister собирает цепочку записи заказа:
// attempts.Guard -> outbox.Recorder (если есть транспорт) -> бэкенд или локальный журнал.
func buildPersister(cfg Config, deps *runtimeDependencies, client *backend.Client, publishing bool, logger *log.Entry) domain.OrderPersister {
	var sink domain.OrderPersister = client
	if cfg.OrderSink == OrderSinkLocal {
		sink = orders.NewRecorder(deps.orders, logger.WithField("layer", "orders"))
	}

	persister := sink
	if publishing {
		persister = outbox.NewRecorder(persister, deps.outboxRepo, logger.WithField("layer", "outbox"))
	}

	return attempts.NewGuard(persister, deps.attempts,
		attempts.WithGuardLogger(logger.WithField("layer", "attempts")),
		attempts.WithTTL(cfg.AttemptTTL),
	)
}

// buildNotifier собирает каналы уведомлений: журнал в лог и Telegram, если он настроен.
func buildNotifier(cfg Config, logger *log.Entry) domain.OrderNotifier {
	journal := logger.WithField("layer", "order-journal")
	channels := notify.Broadcast{notify.Func(func(_ context.Context, n domain.OrderNotification) error {
		journal.WithFields(log.Fields{
			"reference": n.Reference,
			"lines":     len(n.Lines),
			"total":     n.Total,
		}).Info("order placed")
		return nil
	})}

	token := strings.TrimSpace(cfg.TelegramBotToken)
	if token == "" || len(cfg.TelegramChatIDs) == 0 {
		logger.Warn("telegram relay is not configured, operators will not be notified")
		return channels
	}

	relay := telegram.NewRelay(telegram.Config{
		APIURL:        cfg.TelegramAPIURL,
		BotToken:      token,
		ChatIDs:       cfg.TelegramChatIDs,
		OrderAdminURL: cfg.OrderAdminURL,
	}, telegram.WithLogger(logger.WithField("layer", "telegram")))

	return append(channels, relay)
}
