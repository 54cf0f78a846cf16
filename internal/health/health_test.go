package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_Healthy(t *testing.T) {
	h := NewHandler("v1.0.0")
	h.Register("postgres", CheckFunc(func(context.Context) error { return nil }), true)

	rec := serve(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, StatusHealthy, resp.Status)
	require.Equal(t, "v1.0.0", resp.Version)
	require.True(t, resp.Checks["postgres"].Critical)
}

func TestHandler_CriticalFailureIsUnhealthy(t *testing.T) {
	h := NewHandler("v1.0.0")
	h.Register("postgres", CheckFunc(func(context.Context) error { return errors.New("connection refused") }), true)
	h.Register("catalog", DegradedFunc(func() (bool, string) { return true, "fallback" }), false)

	rec := serve(t, h, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, StatusUnhealthy, resp.Status)
	require.Equal(t, "connection refused", resp.Checks["postgres"].Message)
	require.Equal(t, StatusDegraded, resp.Checks["catalog"].Status)

	require.Equal(t, http.StatusServiceUnavailable, serve(t, http.HandlerFunc(h.ReadinessHandler), "/readyz").Code)
}

func TestHandler_NonCriticalFailureDegrades(t *testing.T) {
	h := NewHandler("dev")
	h.Register("outbox", CheckFunc(func(context.Context) error { return errors.New("broker down") }), false)

	resp := h.Evaluate(context.Background())
	require.Equal(t, StatusDegraded, resp.Status)
	require.Equal(t, StatusUnhealthy, resp.Checks["outbox"].Status)
	require.True(t, h.Ready(context.Background()))

	rec := serve(t, http.HandlerFunc(h.ReadinessHandler), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ready", rec.Body.String())
}

func TestHandler_ChecksRunConcurrentlyWithTimeout(t *testing.T) {
	h := NewHandler("dev")
	h.timeout = 50 * time.Millisecond
	slow := CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	h.Register("a", slow, true)
	h.Register("b", slow, true)

	start := time.Now()
	resp := h.Evaluate(context.Background())
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, StatusUnhealthy, resp.Status)
	require.Contains(t, resp.Checks["a"].Message, "deadline exceeded")
}

func TestHandler_NoChecksIsHealthy(t *testing.T) {
	resp := NewHandler("dev").Evaluate(context.Background())
	require.Equal(t, StatusHealthy, resp.Status)
	require.Empty(t, resp.Checks)
}

func TestLivenessHandler(t *testing.T) {
	rec := serve(t, http.HandlerFunc(LivenessHandler), "/livez")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
