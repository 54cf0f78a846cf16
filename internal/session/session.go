// Package session хранит состояние посетителей: корзину, оформление, язык, тему и доступ.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/simosh/storefront/internal/cart"
	"github.com/simosh/storefront/internal/checkout"
	"github.com/simosh/storefront/internal/domain"
)

var (
	// ErrCheckoutLocked — корзину нельзя менять, пока заказ отправляется.
	ErrCheckoutLocked = errors.New("cart is locked while the order is being submitted")
	// ErrNotVerified — посетитель ещё не подтвердил доступ.
	ErrNotVerified = errors.New("access is not confirmed")
	// ErrClientIDRequired — запрос без идентификатора клиента.
	ErrClientIDRequired = errors.New("client id is required")
)

// Session — корневой объект посетителя и единственный владелец его корзины и сценария оформления.
type Session struct {
	id       string
	cart     *cart.Store
	workflow *checkout.Workflow

	mu       sync.Mutex
	language domain.Language
	theme    domain.Theme
	verified bool
	lastSeen time.Time
}

// View отдаётся клиенту в GET /api/session.
type View struct {
	ClientID  string          `json:"clientId"`
	Language  domain.Language `json:"language"`
	Theme     domain.Theme    `json:"theme"`
	Verified  bool            `json:"verified"`
	CartCount int             `json:"cartCount"`
	Checkout  checkout.State  `json:"checkoutState"`
}

// ID возвращает идентификатор клиента.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Language() domain.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *Session) Theme() domain.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *Session) Verified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

// RequireVerified возвращает ErrNotVerified, пока доступ не подтверждён.
func (s *Session) RequireVerified() error {
	if !s.Verified() {
		return ErrNotVerified
	}
	return nil
}

// Workflow возвращает сценарий оформления сессии.
func (s *Session) Workflow() *checkout.Workflow {
	return s.workflow
}

// Cart возвращает снимок корзины.
func (s *Session) Cart() cart.Cart {
	return s.cart.Snapshot()
}

// AddToCart добавляет одну единицу товара.
func (s *Session) AddToCart(product domain.Product) (cart.Cart, error) {
	return s.mutate(func() cart.Cart { return s.cart.AddOne(product) })
}

// RemoveOne убирает одну единицу товара.
func (s *Session) RemoveOne(productID string) (cart.Cart, error) {
	return s.mutate(func() cart.Cart { return s.cart.RemoveOne(productID) })
}

// RemoveAll убирает строку товара целиком.
func (s *Session) RemoveAll(productID string) (cart.Cart, error) {
	return s.mutate(func() cart.Cart { return s.cart.RemoveAll(productID) })
}

func (s *Session) mutate(fn func() cart.Cart) (cart.Cart, error) {
	var result cart.Cart
	err := s.workflow.UnlessSubmitting(func() {
		result = fn()
	})
	if errors.Is(err, checkout.ErrSubmissionInProgress) {
		return s.cart.Snapshot(), ErrCheckoutLocked
	}
	return result, err
}

// View собирает состояние сессии.
func (s *Session) View() View {
	s.mu.Lock()
	v := View{
		ClientID: s.id,
		Language: s.language,
		Theme:    s.theme,
		Verified: s.verified,
	}
	s.mu.Unlock()

	v.CartCount = s.cart.Snapshot().Count()
	v.Checkout = s.workflow.State()
	return v
}

func (s *Session) setLanguage(lang domain.Language) {
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()
}

func (s *Session) setTheme(theme domain.Theme) {
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()
}

func (s *Session) setVerified() {
	s.mu.Lock()
	s.verified = true
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
