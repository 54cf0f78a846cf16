// Package gate хранит одноразовое подтверждение доступа посетителя.
package gate

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/simosh/storefront/internal/domain"
)

// Gate читает и записывает флаг verified в долговременном хранилище настроек.
type Gate struct {
	store  domain.PreferenceStore
	logger *log.Entry
}

// New создаёт Gate.
func New(store domain.PreferenceStore, logger *log.Entry) *Gate {
	if logger == nil {
		logger = log.WithField("component", "access-gate")
	}
	return &Gate{store: store, logger: logger}
}

// Verified сообщает, подтверждал ли клиент доступ. Отсутствие записи означает false.
func (g *Gate) Verified(ctx context.Context, clientID string) (bool, error) {
	if g.store == nil {
		return false, errors.New("access gate: preference store is not configured")
	}

	value, err := g.store.Get(ctx, clientID, domain.PreferenceVerified)
	if errors.Is(err, domain.ErrPreferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read verified flag: %w", err)
	}
	return value == domain.PreferenceVerifiedValue, nil
}

// Confirm записывает подтверждение. Повторный вызов ничего не меняет.
func (g *Gate) Confirm(ctx context.Context, clientID string) error {
	if g.store == nil {
		return errors.New("access gate: preference store is not configured")
	}
	if err := g.store.Set(ctx, clientID, domain.PreferenceVerified, domain.PreferenceVerifiedValue); err != nil {
		return fmt.Errorf("store verified flag: %w", err)
	}
	g.logger.WithField("client_id", clientID).Debug("access confirmed")
	return nil
}
