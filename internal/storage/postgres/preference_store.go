package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/simosh/storefront/internal/domain"
)

type preferenceStore struct {
	db *sql.DB
}

// NewPreferenceStore создаёт PostgreSQL-хранилище настроек клиентов.
func NewPreferenceStore(store *Store) domain.PreferenceStore {
	return &preferenceStore{db: store.DB()}
}

func (s *preferenceStore) Get(ctx context.Context, clientID, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM client_preferences WHERE client_id = $1 AND key = $2
	`, clientID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrPreferenceNotFound
		}
		return "", fmt.Errorf("get preference: %w", err)
	}
	return value, nil
}

func (s *preferenceStore) Set(ctx context.Context, clientID, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO client_preferences (client_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (client_id, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, clientID, key, value); err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

var _ domain.PreferenceStore = (*preferenceStore)(nil)
