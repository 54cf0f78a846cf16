package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/domain"
)

func TestBroadcastJoinsAllFailures(t *testing.T) {
	var calls atomic.Int32
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	b := Broadcast{
		Func(func(context.Context, domain.OrderNotification) error { calls.Add(1); return errA }),
		Func(func(context.Context, domain.OrderNotification) error { calls.Add(1); return nil }),
		nil,
		Func(func(context.Context, domain.OrderNotification) error { calls.Add(1); return errB }),
	}

	err := b.NotifyOrder(context.Background(), domain.OrderNotification{})
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	require.Equal(t, int32(3), calls.Load())
}

func TestBroadcastAllDelivered(t *testing.T) {
	ok := Func(func(context.Context, domain.OrderNotification) error { return nil })
	require.NoError(t, Broadcast{ok, ok}.NotifyOrder(context.Background(), domain.OrderNotification{}))
	require.NoError(t, Broadcast(nil).NotifyOrder(context.Background(), domain.OrderNotification{}))
}
