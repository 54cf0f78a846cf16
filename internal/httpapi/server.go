// Package httpapi отдаёт витрину и сессию посетителя по HTTP в формате JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/catalog"
	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/i18n"
	"github.com/simosh/storefront/internal/metrics"
	"github.com/simosh/storefront/internal/session"
)

const (
	// CookieName — cookie с идентификатором клиента.
	CookieName = "simosh_client"
	// IdempotencyKeyHeader — заголовок с токеном попытки оформления.
	IdempotencyKeyHeader = "Idempotency-Key"

	cookieMaxAge = 365 * 24 * 60 * 60
)

// CatalogProvider отдаёт текущий снимок каталога.
type CatalogProvider interface {
	Current() *catalog.Snapshot
}

// OrderLookup ищет записанный заказ по токену попытки.
type OrderLookup interface {
	GetByToken(ctx context.Context, token string) (domain.Order, error)
}

// Options задаёт параметры Server.
type Options struct {
	Logger       *log.Entry
	Metrics      *metrics.CheckoutMetrics
	Messages     *i18n.Catalog
	Orders       OrderLookup
	AdminToken   string
	SecureCookie bool
	NewClientID  func() string
}

// Option настраивает Server.
type Option func(*Options)

func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func WithMessages(c *i18n.Catalog) Option {
	return func(o *Options) { o.Messages = c }
}

// WithOrderLookup включает GET /api/orders/{token}, защищённый adminToken.
func WithOrderLookup(orders OrderLookup, adminToken string) Option {
	return func(o *Options) {
		o.Orders = orders
		o.AdminToken = adminToken
	}
}

// WithSecureCookie выставляет Secure у cookie клиента.
func WithSecureCookie(secure bool) Option {
	return func(o *Options) { o.SecureCookie = secure }
}

// WithClientIDGenerator подменяет генератор идентификаторов клиента.
func WithClientIDGenerator(fn func() string) Option {
	return func(o *Options) { o.NewClientID = fn }
}

// Server — HTTP-слой над реестром сессий и каталогом.
type Server struct {
	registry     *session.Registry
	catalog      CatalogProvider
	messages     *i18n.Catalog
	metrics      *metrics.CheckoutMetrics
	orders       OrderLookup
	adminToken   string
	secureCookie bool
	newClientID  func() string
	logger       *log.Entry
}

// NewServer создаёт HTTP API.
func NewServer(registry *session.Registry, provider CatalogProvider, options ...Option) *Server {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	if opts.Messages == nil {
		opts.Messages = i18n.Default()
	}
	if opts.NewClientID == nil {
		opts.NewClientID = uuid.NewString
	}

	return &Server{
		registry:     registry,
		catalog:      provider,
		messages:     opts.Messages,
		metrics:      opts.Metrics,
		orders:       opts.Orders,
		adminToken:   opts.AdminToken,
		secureCookie: opts.SecureCookie,
		newClientID:  opts.NewClientID,
		logger:       logger,
	}
}

// Handler возвращает маршрутизатор со всеми обработчиками.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/storefront", s.withSession(s.handleStorefront))

	mux.HandleFunc("GET /api/session", s.withSession(s.handleSession))
	mux.HandleFunc("POST /api/session/verify", s.withSession(s.handleVerify))
	mux.HandleFunc("PUT /api/session/preferences", s.withSession(s.handlePreferences))

	mux.HandleFunc("GET /api/cart", s.withVerified(s.handleCart))
	mux.HandleFunc("POST /api/cart/items", s.withVerified(s.handleAddItem))
	mux.HandleFunc("DELETE /api/cart/items/{productID}", s.withVerified(s.handleRemoveOne))
	mux.HandleFunc("DELETE /api/cart/items/{productID}/all", s.withVerified(s.handleRemoveAll))

	mux.HandleFunc("GET /api/checkout", s.withVerified(s.handleCheckout))
	mux.HandleFunc("POST /api/checkout/begin", s.withVerified(s.handleBegin))
	mux.HandleFunc("POST /api/checkout/back", s.withVerified(s.handleBack))
	mux.HandleFunc("POST /api/checkout/close", s.withVerified(s.handleClose))
	mux.HandleFunc("PUT /api/checkout/form", s.withVerified(s.handleForm))
	mux.HandleFunc("POST /api/checkout/submit", s.withVerified(s.handleSubmit))

	if s.orders != nil && s.adminToken != "" {
		mux.HandleFunc("GET /api/orders/{token}", s.handleOrder)
	}

	return s.recoverer(s.accessLog(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := s.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithField("panic", rec).WithField("path", r.URL.Path).Error("handler panicked")
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
