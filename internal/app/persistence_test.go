package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/notify"
)

func testSubmission(token string) domain.OrderSubmission {
	return domain.OrderSubmission{
		Items:     []domain.OrderItem{{ProductID: "1", Quantity: 2}},
		Status:    domain.OrderStatusInProgress,
		FirstName: "Ali",
		LastName:  "Valiyev",
		Phone:     "+998901234567",
		Token:     token,
	}
}

func TestBuildPersister_LocalSinkWithOutbox(t *testing.T) {
	logger := log.WithField("test", "local-sink")
	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, logger)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.OrderSink = OrderSinkLocal
	persister := buildPersister(cfg, deps, newBackendClient(cfg, logger), true, logger)

	ctx := context.Background()
	require.NoError(t, persister.CreateOrder(ctx, testSubmission("attempt-1")))
	require.NoError(t, persister.CreateOrder(ctx, testSubmission("attempt-1")))

	recent, err := deps.orders.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "attempt-1", recent[0].Token)

	stats, err := deps.outboxRepo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Pending)

	changed := testSubmission("attempt-1")
	changed.FirstName = "Vali"
	err = persister.CreateOrder(ctx, changed)
	require.ErrorIs(t, err, domain.ErrAttemptFingerprintMismatch)
}

func TestBuildPersister_RemoteSink(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "attempt-7", r.Header.Get("Idempotency-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	logger := log.WithField("test", "remote-sink")
	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, logger)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BackendURL = srv.URL
	persister := buildPersister(cfg, deps, newBackendClient(cfg, logger), false, logger)

	ctx := context.Background()
	require.NoError(t, persister.CreateOrder(ctx, testSubmission("attempt-7")))
	require.NoError(t, persister.CreateOrder(ctx, testSubmission("attempt-7")))
	require.EqualValues(t, 1, calls.Load())

	stats, err := deps.outboxRepo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Pending)
}

func TestBuildNotifier(t *testing.T) {
	logger := log.WithField("test", "notifier")

	cfg := DefaultConfig()
	n, ok := buildNotifier(cfg, logger).(notify.Broadcast)
	require.True(t, ok)
	require.Len(t, n, 1)
	require.NoError(t, n.NotifyOrder(context.Background(), domain.OrderNotification{Reference: "r-1"}))

	cfg.TelegramBotToken = "123:abc"
	cfg.TelegramChatIDs = []string{"111"}
	n, ok = buildNotifier(cfg, logger).(notify.Broadcast)
	require.True(t, ok)
	require.Len(t, n, 2)
}
