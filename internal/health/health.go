// Package health собирает проверки зависимостей витрины в /healthz и /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status описывает состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result хранит итог одной проверки.
type Result struct {
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]Result `json:"checks,omitempty"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) (Status, string)
}

// CheckFunc считает компонент нездоровым при ошибке.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) (Status, string) {
	if err := f(ctx); err != nil {
		return StatusUnhealthy, err.Error()
	}
	return StatusHealthy, ""
}

// DegradedFunc сообщает, что компонент работает на запасных данных.
type DegradedFunc func() (degraded bool, reason string)

func (f DegradedFunc) Check(context.Context) (Status, string) {
	if degraded, reason := f(); degraded {
		return StatusDegraded, reason
	}
	return StatusHealthy, ""
}

type registration struct {
	checker  Checker
	critical bool
}

// Handler выполняет зарегистрированные проверки параллельно.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]registration
	version string
	started time.Time
	timeout time.Duration
}

// NewHandler создаёт обработчик; каждая проверка ограничена двумя секундами.
func NewHandler(version string) *Handler {
	return &Handler{
		checks:  make(map[string]registration),
		version: version,
		started: time.Now(),
		timeout: 2 * time.Second,
	}
}

// Register добавляет проверку. Отказ критичной проверки делает сервис
// unhealthy и не готовым; отказ некритичной лишь переводит его в degraded.
func (h *Handler) Register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registration{checker: checker, critical: critical}
}

// Evaluate выполняет все проверки и сводит их в общий статус.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	checks := make(map[string]registration, len(h.checks))
	for name, reg := range h.checks {
		checks[name] = reg
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(checks))
	)
	var wg sync.WaitGroup
	for name, reg := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := h.run(ctx, reg)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, result := range results {
		overall = worse(overall, effective(result))
	}

	return Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Checks:        results,
	}
}

// Ready сообщает, что ни одна критичная проверка не провалена.
func (h *Handler) Ready(ctx context.Context) bool {
	return h.Evaluate(ctx).Status != StatusUnhealthy
}

func (h *Handler) run(ctx context.Context, reg registration) Result {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	status, message := reg.checker.Check(ctx)
	return Result{
		Status:     status,
		Critical:   reg.critical,
		Message:    message,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// effective переводит отказ некритичной проверки в degraded.
func effective(r Result) Status {
	if r.Status == StatusUnhealthy && !r.Critical {
		return StatusDegraded
	}
	return r.Status
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ServeHTTP отдаёт полный отчёт; 503 только для unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler отвечает 503, пока провалена критичная проверка.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if !h.Ready(r.Context()) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}
