package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simosh/storefront/internal/domain"
	"github.com/simosh/storefront/internal/storage/memory"
)

func validSubmission(token string) domain.OrderSubmission {
	return domain.OrderSubmission{
		Items:     []domain.OrderItem{{ProductID: "1", Quantity: 1}},
		Status:    domain.OrderStatusInProgress,
		FirstName: "Ali",
		LastName:  "Valiyev",
		Phone:     "+998901234567",
		Token:     token,
	}
}

func TestRecorder_CreateOrder(t *testing.T) {
	repo := memory.NewOrderRepository()
	rec := NewRecorder(repo, nil)

	require.NoError(t, rec.CreateOrder(context.Background(), validSubmission("token-1")))

	order, err := repo.GetByToken(context.Background(), "token-1")
	require.NoError(t, err)
	require.Equal(t, "+998901234567", order.Submission.Phone)
	require.NotEmpty(t, order.ID)
	require.False(t, order.CreatedAt.IsZero())
}

func TestRecorder_DuplicateTokenIsAccepted(t *testing.T) {
	repo := memory.NewOrderRepository()
	rec := NewRecorder(repo, nil)

	require.NoError(t, rec.CreateOrder(context.Background(), validSubmission("token-1")))
	require.NoError(t, rec.CreateOrder(context.Background(), validSubmission("token-1")))

	recent, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestRecorder_RejectsInvalidSubmission(t *testing.T) {
	rec := NewRecorder(memory.NewOrderRepository(), nil)

	invalid := validSubmission("token-1")
	invalid.Items = nil
	invalid.Phone = ""

	err := rec.CreateOrder(context.Background(), invalid)
	require.ErrorIs(t, err, domain.ErrOrderRejected)
	require.ErrorIs(t, err, domain.ErrItemsRequired)
	require.ErrorIs(t, err, domain.ErrPhoneRequired)
}

func TestRecorder_RejectsMalformedPhone(t *testing.T) {
	repo := memory.NewOrderRepository()
	rec := NewRecorder(repo, nil)

	for _, p := range []string{"901234567", "+99890123456", "+7 900 123 45 67"} {
		sub := validSubmission("token-" + p)
		sub.Phone = p

		err := rec.CreateOrder(context.Background(), sub)
		require.ErrorIs(t, err, domain.ErrOrderRejected, p)
		require.ErrorIs(t, err, domain.ErrPhoneInvalid, p)
	}

	turkish := validSubmission("token-tr")
	turkish.Phone = "+905051234567"
	require.NoError(t, rec.CreateOrder(context.Background(), turkish))
}

func TestRecorder_EmptyTokenGetsOrderID(t *testing.T) {
	repo := memory.NewOrderRepository()
	rec := NewRecorder(repo, nil)
	rec.newID = func() string { return "order-42" }

	require.NoError(t, rec.CreateOrder(context.Background(), validSubmission("")))

	order, err := repo.GetByToken(context.Background(), "order-42")
	require.NoError(t, err)
	require.Equal(t, "order-42", order.ID)
}

func TestRecorder_NilRepository(t *testing.T) {
	rec := NewRecorder(nil, nil)
	require.Error(t, rec.CreateOrder(context.Background(), validSubmission("token-1")))
	_, err := rec.Recent(context.Background(), 1)
	require.Error(t, err)
}
