// Package notify объединяет несколько каналов уведомлений о заказах.
package notify

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/simosh/storefront/internal/domain"
)

// Broadcast рассылает уведомление во все каналы параллельно и возвращает
// объединённую ошибку всех каналов, которые не справились.
type Broadcast []domain.OrderNotifier

var _ domain.OrderNotifier = Broadcast(nil)

// NotifyOrder реализует domain.OrderNotifier.
func (b Broadcast) NotifyOrder(ctx context.Context, n domain.OrderNotification) error {
	errs := make([]error, len(b))
	var g errgroup.Group
	for i, notifier := range b {
		if notifier == nil {
			continue
		}
		g.Go(func() error {
			errs[i] = notifier.NotifyOrder(ctx, n)
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

// Func адаптирует функцию к domain.OrderNotifier.
type Func func(ctx context.Context, n domain.OrderNotification) error

// NotifyOrder реализует domain.OrderNotifier.
func (f Func) NotifyOrder(ctx context.Context, n domain.OrderNotification) error {
	return f(ctx, n)
}
