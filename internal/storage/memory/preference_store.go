package memory

import (
	"context"
	"sync"

	"github.com/simosh/storefront/internal/domain"
)

type preferenceKey struct {
	clientID string
	key      string
}

// PreferenceStore хранит настройки клиентов в памяти процесса.
type PreferenceStore struct {
	mu     sync.RWMutex
	values map[preferenceKey]string
}

// NewPreferenceStore создаёт пустое хранилище.
func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{values: make(map[preferenceKey]string)}
}

// Get возвращает значение или ErrPreferenceNotFound.
func (s *PreferenceStore) Get(_ context.Context, clientID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[preferenceKey{clientID: clientID, key: key}]
	if !ok {
		return "", domain.ErrPreferenceNotFound
	}
	return v, nil
}

// Set сохраняет значение.
func (s *PreferenceStore) Set(_ context.Context, clientID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[preferenceKey{clientID: clientID, key: key}] = value
	return nil
}

var _ domain.PreferenceStore = (*PreferenceStore)(nil)
