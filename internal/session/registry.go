package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/cart"
	"github.com/simosh/storefront/internal/checkout"
	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/gate"
	"github.com/simosh/storefront/internal/metrics"
)

const (
	defaultTTL           = 2 * time.Hour
	defaultSweepInterval = time.Minute
)

// WorkflowFactory создаёт сценарий оформления поверх корзины новой сессии.
type WorkflowFactory func(store *cart.Store) *checkout.Workflow

// Options задаёт параметры Registry.
type Options struct {
	Logger        *log.Entry
	Metrics       *metrics.CheckoutMetrics
	Gate          *gate.Gate
	Preferences   domain.PreferenceStore
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         func() time.Time
}

// Option настраивает Registry.
type Option func(*Options)

func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithGate подключает хранилище флага доступа.
func WithGate(g *gate.Gate) Option {
	return func(o *Options) { o.Gate = g }
}

// WithPreferences подключает хранилище темы и языка.
func WithPreferences(store domain.PreferenceStore) Option {
	return func(o *Options) { o.Preferences = store }
}

// WithTTL задаёт время простоя, после которого сессия удаляется.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = ttl }
}

func WithSweepInterval(interval time.Duration) Option {
	return func(o *Options) { o.SweepInterval = interval }
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Clock = now }
}

// Registry — in-memory реестр сессий по идентификатору клиента.
type Registry struct {
	factory WorkflowFactory
	gate    *gate.Gate
	prefs   domain.PreferenceStore
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	ttl     time.Duration
	every   time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry создаёт реестр.
func NewRegistry(factory WorkflowFactory, options ...Option) *Registry {
	opts := Options{
		TTL:           defaultTTL,
		SweepInterval: defaultSweepInterval,
		Clock:         time.Now,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "session-registry")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if factory == nil {
		factory = func(store *cart.Store) *checkout.Workflow {
			return checkout.NewWorkflow(store, nil, nil)
		}
	}

	return &Registry{
		factory:  factory,
		gate:     opts.Gate,
		prefs:    opts.Preferences,
		logger:   logger,
		metrics:  opts.Metrics,
		ttl:      opts.TTL,
		every:    opts.SweepInterval,
		now:      opts.Clock,
		sessions: make(map[string]*Session),
	}
}

// Get возвращает сессию клиента, создавая её при первом обращении.
// Флаг доступа, тема и язык читаются из хранилища один раз при создании.
func (r *Registry) Get(ctx context.Context, clientID string) (*Session, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, ErrClientIDRequired
	}
	now := r.now()

	r.mu.Lock()
	if s, ok := r.sessions[clientID]; ok {
		r.mu.Unlock()
		s.touch(now)
		return s, nil
	}
	r.mu.Unlock()

	created := r.newSession(ctx, clientID, now)

	r.mu.Lock()
	if s, ok := r.sessions[clientID]; ok {
		r.mu.Unlock()
		s.touch(now)
		return s, nil
	}
	r.sessions[clientID] = created
	active := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(active)
	return created, nil
}

func (r *Registry) newSession(ctx context.Context, clientID string, now time.Time) *Session {
	workflow := r.factory(cart.NewStore())
	s := &Session{
		id:       clientID,
		cart:     workflow.Cart(),
		workflow: workflow,
		language: domain.DefaultLanguage,
		theme:    domain.ThemeLight,
		lastSeen: now,
	}

	logger := r.logger.WithField("client_id", clientID)

	if r.gate != nil {
		verified, err := r.gate.Verified(ctx, clientID)
		if err != nil {
			logger.WithError(err).Warn("failed to read access flag, treating visitor as unverified")
		}
		s.verified = verified
	}

	if r.prefs != nil {
		if theme, ok := r.readPreference(ctx, logger, clientID, domain.PreferenceTheme); ok && domain.Theme(theme).Valid() {
			s.theme = domain.Theme(theme)
		}
		if lang, ok := r.readPreference(ctx, logger, clientID, domain.PreferenceLanguage); ok && domain.Language(lang).Valid() {
			s.language = domain.Language(lang)
		}
	}

	return s
}

func (r *Registry) readPreference(ctx context.Context, logger *log.Entry, clientID, key string) (string, bool) {
	value, err := r.prefs.Get(ctx, clientID, key)
	if errors.Is(err, domain.ErrPreferenceNotFound) {
		return "", false
	}
	if err != nil {
		logger.WithError(err).WithField("key", key).Warn("failed to read client preference")
		return "", false
	}
	return value, true
}

// Verify подтверждает доступ: сначала в хранилище, затем в памяти.
func (r *Registry) Verify(ctx context.Context, s *Session) error {
	if r.gate != nil {
		if err := r.gate.Confirm(ctx, s.ID()); err != nil {
			return err
		}
	}
	s.setVerified()
	return nil
}

// SetTheme меняет тему и сохраняет её.
func (r *Registry) SetTheme(ctx context.Context, s *Session, theme domain.Theme) error {
	if !theme.Valid() {
		return fmt.Errorf("unsupported theme %q", theme)
	}
	if err := r.savePreference(ctx, s.ID(), domain.PreferenceTheme, string(theme)); err != nil {
		return err
	}
	s.setTheme(theme)
	return nil
}

// SetLanguage меняет язык и сохраняет его.
func (r *Registry) SetLanguage(ctx context.Context, s *Session, lang domain.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q", lang)
	}
	if err := r.savePreference(ctx, s.ID(), domain.PreferenceLanguage, string(lang)); err != nil {
		return err
	}
	s.setLanguage(lang)
	return nil
}

func (r *Registry) savePreference(ctx context.Context, clientID, key, value string) error {
	if r.prefs == nil {
		return nil
	}
	if err := r.prefs.Set(ctx, clientID, key, value); err != nil {
		return fmt.Errorf("save %s preference: %w", key, err)
	}
	return nil
}

// Len возвращает число активных сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep удаляет сессии, простаивающие дольше TTL. Сессия с отправляемым заказом не удаляется.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) <= r.ttl {
			continue
		}
		if s.workflow.State() == checkout.StateSubmitting {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	active := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(active)
	if removed > 0 {
		r.logger.WithFields(log.Fields{
			"removed": removed,
			"active":  active,
		}).Debug("idle sessions evicted")
	}
	return removed
}

// Run периодически чистит реестр до отмены ctx.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
