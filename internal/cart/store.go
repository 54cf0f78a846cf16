package cart

import (
	"sync"

	"github.com/simosh/storefront/internal/domain"
)

// Store владеет корзиной одной сессии и сериализует изменения.
type Store struct {
	mu   sync.RWMutex
	cart Cart
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{}
}

// Snapshot возвращает текущее состояние корзины.
func (s *Store) Snapshot() Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart
}

func (s *Store) apply(fn func(Cart) Cart) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = fn(s.cart)
	return s.cart
}

// AddOne добавляет единицу товара и возвращает новое состояние.
func (s *Store) AddOne(product domain.Product) Cart {
	return s.apply(func(c Cart) Cart { return c.AddOne(product) })
}

// RemoveOne уменьшает количество товара на единицу.
func (s *Store) RemoveOne(productID string) Cart {
	return s.apply(func(c Cart) Cart { return c.RemoveOne(productID) })
}

// RemoveAll удаляет строку товара.
func (s *Store) RemoveAll(productID string) Cart {
	return s.apply(func(c Cart) Cart { return c.RemoveAll(productID) })
}

// Clear очищает корзину.
func (s *Store) Clear() Cart {
	return s.apply(Cart.Clear)
}
