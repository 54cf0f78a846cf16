package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы попытки оформления заказа.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
)

// CheckoutMetrics содержит метрики оформления заказов.
type CheckoutMetrics struct {
	// Счётчики попыток по исходу
	submissions *prometheus.CounterVec

	// Ошибки доставки уведомлений
	notificationFailures prometheus.Counter

	// Время от блокировки формы до ответа системы учёта
	submitDuration prometheus.Histogram

	// Gauge для попыток, ожидающих ответа
	inFlight prometheus.Gauge

	// Активные сессии витрины
	activeSessions prometheus.Gauge
	cartAdds       prometheus.Counter
}

// NewCheckoutMetrics создаёт метрики в глобальном реестре.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		submissions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "simosh_checkout_submissions_total",
			Help: "Total number of checkout submissions by outcome",
		}, []string{"outcome"}),
		notificationFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "simosh_order_notification_failures_total",
			Help: "Total number of orders whose operator notification was not fully delivered",
		}),
		submitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "simosh_checkout_submit_duration_seconds",
			Help:    "Duration of order persistence during checkout in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "simosh_checkout_in_flight",
			Help: "Number of checkout submissions waiting for the order backend",
		}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "simosh_active_sessions",
			Help: "Number of storefront sessions held in memory",
		}),
		cartAdds: registerCounter(registerer, prometheus.CounterOpts{
			Name: "simosh_cart_add_total",
			Help: "Total number of items added to carts",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSubmission увеличивает счётчик попыток с указанным исходом.
func (m *CheckoutMetrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// RecordNotificationFailure увеличивает счётчик недоставленных уведомлений.
func (m *CheckoutMetrics) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}

// RecordSubmitDuration записывает время записи заказа.
func (m *CheckoutMetrics) RecordSubmitDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.submitDuration.Observe(duration.Seconds())
}

// SubmitStarted увеличивает число ожидающих попыток.
func (m *CheckoutMetrics) SubmitStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// SubmitFinished уменьшает число ожидающих попыток.
func (m *CheckoutMetrics) SubmitFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// SetActiveSessions выставляет число сессий в памяти.
func (m *CheckoutMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// RecordCartAdd увеличивает счётчик добавлений в корзину.
func (m *CheckoutMetrics) RecordCartAdd() {
	if m == nil {
		return
	}
	m.cartAdds.Inc()
}
