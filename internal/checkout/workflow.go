// Package checkout реализует сценарий оформления заказа: корзина → форма → отправка → успех.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/cart"
	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/i18n"
	"github.com/simosh/storefront/internal/metrics"
	"github.com/simosh/storefront/internal/phone"
)

// State — состояние сценария оформления.
type State string

const (
	StateBrowsing   State = "browsing"
	StateFormEntry  State = "form_entry"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	defaultNotifyTimeout = 15 * time.Second
)

var (
	// ErrSubmissionInProgress — попытка уже отправляется, действие недоступно.
	ErrSubmissionInProgress = errors.New("order submission in progress")
	// ErrInvalidTransition — действие недоступно в текущем состоянии.
	ErrInvalidTransition = errors.New("invalid checkout transition")
)

// Form — данные покупателя. Phone хранится в отображаемом виде ("90 123 45 67").
type Form struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CountryCode string `json:"countryCode"`
	Phone       string `json:"phone"`
	Description string `json:"description"`
}

// Notice — сообщение пользователю по итогам действия.
type Notice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// IsZero сообщает, что уведомления нет.
func (n Notice) IsZero() bool {
	return n.Key == ""
}

// Snapshot описывает сценарий для отображения.
type Snapshot struct {
	State  State  `json:"state"`
	Form   Form   `json:"form"`
	Notice Notice `json:"notice"`
}

// Result — итог отправки заказа. Token заполняется для любой попытки,
// дошедшей до записи; повтор с тем же Token не создаёт второй заказ.
type Result struct {
	State  State
	Notice Notice
	// Total — сумма корзины на момент отправки; заполняется только при успехе.
	Total int64
	Token string
}

// Accepted сообщает, что заказ принят системой учёта.
func (r Result) Accepted() bool {
	return r.State == StateSuccess
}

// Options задаёт зависимости сценария.
type Options struct {
	Logger        *log.Entry
	Metrics       *metrics.CheckoutMetrics
	Messages      *i18n.Catalog
	SubmitTimeout time.Duration
	NotifyTimeout time.Duration
	NewToken      func() string
	Now           func() time.Time
}

// Option настраивает Workflow.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics задаёт метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithMessages задаёт каталог текстов уведомлений.
func WithMessages(c *i18n.Catalog) Option {
	return func(o *Options) { o.Messages = c }
}

// WithSubmitTimeout ограничивает время записи заказа.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *Options) { o.SubmitTimeout = d }
}

// WithNotifyTimeout ограничивает время уведомления о принятом заказе.
func WithNotifyTimeout(d time.Duration) Option {
	return func(o *Options) { o.NotifyTimeout = d }
}

// WithTokenGenerator задаёт генератор токенов попытки.
func WithTokenGenerator(fn func() string) Option {
	return func(o *Options) { o.NewToken = fn }
}

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// Workflow — конечный автомат оформления заказа одной сессии.
type Workflow struct {
	mu     sync.Mutex
	state  State
	form   Form
	notice Notice

	cart      *cart.Store
	persister domain.OrderPersister
	notifier  domain.OrderNotifier

	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	messages      *i18n.Catalog
	timeout       time.Duration
	notifyTimeout time.Duration
	newToken      func() string
	now           func() time.Time
}

// NewWorkflow создаёт сценарий в состоянии browsing. notifier может быть nil.
func NewWorkflow(store *cart.Store, persister domain.OrderPersister, notifier domain.OrderNotifier, options ...Option) *Workflow {
	opts := Options{SubmitTimeout: defaultSubmitTimeout, NotifyTimeout: defaultNotifyTimeout}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	if opts.Messages == nil {
		opts.Messages = i18n.Default()
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.NewToken == nil {
		opts.NewToken = func() string { return uuid.NewString() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if store == nil {
		store = cart.NewStore()
	}

	return &Workflow{
		state:         StateBrowsing,
		form:          Form{CountryCode: phone.DefaultCode},
		cart:          store,
		persister:     persister,
		notifier:      notifier,
		logger:        logger,
		metrics:       opts.Metrics,
		messages:      opts.Messages,
		timeout:       opts.SubmitTimeout,
		notifyTimeout: opts.NotifyTimeout,
		newToken:      opts.NewToken,
		now:           opts.Now,
	}
}

// Cart возвращает корзину, которой управляет сценарий.
func (w *Workflow) Cart() *cart.Store {
	return w.cart
}

// State возвращает текущее состояние.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot возвращает состояние, форму и последнее уведомление.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{State: w.state, Form: w.form, Notice: w.notice}
}

// UnlessSubmitting выполняет fn, если заказ сейчас не отправляется.
// Переход в submitting не может произойти, пока fn выполняется.
func (w *Workflow) UnlessSubmitting(fn func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateSubmitting {
		return ErrSubmissionInProgress
	}
	fn()
	return nil
}

// BeginCheckout открывает форму оформления.
func (w *Workflow) BeginCheckout() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateBrowsing:
		w.state = StateFormEntry
		w.notice = Notice{}
		return nil
	case StateFormEntry:
		return nil
	case StateSubmitting:
		return ErrSubmissionInProgress
	default:
		return ErrInvalidTransition
	}
}

// BackToCart возвращает к корзине, сохраняя введённые данные.
func (w *Workflow) BackToCart() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateFormEntry:
		w.state = StateBrowsing
		return nil
	case StateSubmitting:
		return ErrSubmissionInProgress
	default:
		return ErrInvalidTransition
	}
}

// UpdateForm сохраняет данные формы; телефон приводится к отображаемому виду.
func (w *Workflow) UpdateForm(form Form) (Form, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateFormEntry:
	case StateSubmitting:
		return w.form, ErrSubmissionInProgress
	default:
		return w.form, ErrInvalidTransition
	}

	form.CountryCode = strings.TrimSpace(form.CountryCode)
	if form.CountryCode == "" {
		form.CountryCode = phone.DefaultCode
	}
	form.Phone = phone.FormatDisplayPhone(form.CountryCode, form.Phone)
	w.form = form
	return w.form, nil
}

// Close закрывает панель корзины. Из success сбрасывает флаг успеха, корзину не трогает.
func (w *Workflow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateSubmitting {
		return ErrSubmissionInProgress
	}
	w.state = StateBrowsing
	w.notice = Notice{}
	return nil
}

// Submit отправляет заказ с новым токеном попытки.
func (w *Workflow) Submit(ctx context.Context, lang domain.Language) (Result, error) {
	return w.SubmitWithToken(ctx, lang, "")
}

// SubmitWithToken отправляет заказ. Пустой token заменяется сгенерированным.
// Ошибки записи и уведомления не возвращаются, а превращаются в уведомление пользователю.
func (w *Workflow) SubmitWithToken(ctx context.Context, lang domain.Language, token string) (Result, error) {
	w.mu.Lock()
	switch w.state {
	case StateFormEntry:
	case StateSubmitting:
		w.mu.Unlock()
		return Result{}, ErrSubmissionInProgress
	default:
		w.mu.Unlock()
		return Result{}, ErrInvalidTransition
	}

	form := w.form
	snapshot := w.cart.Snapshot()

	if strings.TrimSpace(form.FirstName) == "" || strings.TrimSpace(form.LastName) == "" ||
		strings.TrimSpace(form.Phone) == "" || snapshot.IsEmpty() {
		res := w.rejectLocked(lang, i18n.KeyRequiredFields)
		w.mu.Unlock()
		return res, nil
	}
	if !phone.IsValidPhoneParts(form.CountryCode, form.Phone) {
		res := w.rejectLocked(lang, i18n.KeyInvalidPhone)
		w.mu.Unlock()
		return res, nil
	}

	if token == "" {
		token = w.newToken()
	}
	submission := domain.OrderSubmission{
		Items:       snapshot.OrderItems(),
		Status:      domain.OrderStatusInProgress,
		FirstName:   strings.TrimSpace(form.FirstName),
		LastName:    strings.TrimSpace(form.LastName),
		Phone:       phone.FormatFullPhone(form.CountryCode, form.Phone),
		Description: strings.TrimSpace(form.Description),
		Token:       token,
	}
	notification := domain.OrderNotification{
		Reference: token,
		Customer: domain.Customer{
			FirstName:   submission.FirstName,
			LastName:    submission.LastName,
			Phone:       phone.FormatPrettyPhone(form.CountryCode, form.Phone),
			Description: submission.Description,
		},
		Lines:    snapshot.NotificationLines(),
		Total:    snapshot.Total(),
		Language: lang,
	}

	w.state = StateSubmitting
	w.notice = Notice{}
	w.mu.Unlock()

	logger := w.logger.WithFields(log.Fields{
		"token": token,
		"items": len(submission.Items),
		"total": notification.Total,
	})

	// Отправку нельзя прервать отключением клиента: заказ либо записан, либо нет.
	detached := context.WithoutCancel(ctx)

	w.metrics.SubmitStarted()
	start := w.now()
	err := w.persist(detached, submission)
	w.metrics.RecordSubmitDuration(w.now().Sub(start))
	w.metrics.SubmitFinished()

	if err != nil {
		logger.WithError(err).Warn("order submission failed")
		w.metrics.RecordSubmission(metrics.OutcomeRejected)

		w.mu.Lock()
		defer w.mu.Unlock()
		w.state = StateFormEntry
		w.notice = w.noticeFor(lang, i18n.KeyOrderFailed)
		return Result{State: w.state, Notice: w.notice, Token: token}, nil
	}

	w.metrics.RecordSubmission(metrics.OutcomeAccepted)
	logger.Info("order accepted")

	notification.PlacedAt = w.now()
	w.notify(detached, logger, notification)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cart.Clear()
	w.form = Form{CountryCode: form.CountryCode}
	w.state = StateSuccess
	w.notice = w.noticeFor(lang, i18n.KeyOrderAccepted)

	return Result{
		State:  w.state,
		Notice: w.notice,
		Total:  notification.Total,
		Token:  token,
	}, nil
}

// persist записывает заказ в пределах SubmitTimeout. Паника persister'а
// превращается в ошибку, чтобы сценарий не остался в submitting.
func (w *Workflow) persist(ctx context.Context, submission domain.OrderSubmission) (err error) {
	if w.persister == nil {
		return errors.New("order persister is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("order persister panicked: %v", r)
		}
	}()
	return w.persister.CreateOrder(ctx, submission)
}

// notify получает свой срок: медленная запись не съедает время уведомления.
func (w *Workflow) notify(ctx context.Context, logger *log.Entry, n domain.OrderNotification) {
	if w.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.notifyTimeout)
	defer cancel()

	if err := w.notifier.NotifyOrder(ctx, n); err != nil {
		logger.WithError(err).Warn("order notification was not delivered to every recipient")
		w.metrics.RecordNotificationFailure()
	}
}

func (w *Workflow) rejectLocked(lang domain.Language, key string) Result {
	w.metrics.RecordSubmission(metrics.OutcomeInvalid)
	w.notice = w.noticeFor(lang, key)
	return Result{State: w.state, Notice: w.notice}
}

func (w *Workflow) noticeFor(lang domain.Language, key string) Notice {
	return Notice{Key: key, Text: w.messages.Text(lang, key)}
}
