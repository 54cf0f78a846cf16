package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/simosh/storefront/internal/domain"
)

// orderRepositoryInMemory — журнал заказов в памяти процесса.
type orderRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.Order
	byToken map[string]string
}

// NewOrderRepository возвращает in-memory журнал для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:   make(map[string]domain.Order),
		byToken: make(map[string]string),
	}
}

// Create сохраняет заказ, если ID и токен ещё не заняты.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	if order.Token != "" {
		if _, exists := r.byToken[order.Token]; exists {
			return domain.ErrOrderAlreadyExists
		}
		r.byToken[order.Token] = order.ID
	}
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByToken ищет заказ по токену попытки.
func (r *orderRepositoryInMemory) GetByToken(ctx context.Context, token string) (domain.Order, error) {
	r.mu.RLock()
	id, ok := r.byToken[token]
	r.mu.RUnlock()
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.Get(ctx, id)
}

// ListRecent возвращает заказы от новых к старым, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListRecent(_ context.Context, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Submission.Items = append([]domain.OrderItem(nil), o.Submission.Items...)
	return o
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
