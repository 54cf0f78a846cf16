package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simosh/storefront/internal/domain"
)

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxDead
)

type outboxEntry struct {
	msg   domain.OutboxMessage
	state outboxState
	seq   uint64
}

// OutboxRepository — outbox в памяти процесса. Доставленные события сразу удаляются.
type OutboxRepository struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]*outboxEntry
	now     func() time.Time
}

// NewOutboxRepository создаёт in-memory outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries: make(map[string]*outboxEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now()
	msg.Payload = slices.Clone(msg.Payload)
	msg.Attempts = 0
	msg.LastError = ""
	msg.CreatedAt = now
	if msg.AvailableAt.IsZero() {
		msg.AvailableAt = now
	}

	r.seq++
	r.entries[msg.ID] = &outboxEntry{msg: msg, seq: r.seq}
	return msg, nil
}

func (r *OutboxRepository) Due(_ context.Context, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*outboxEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.state == outboxPending && !e.msg.AvailableAt.After(now) {
			due = append(due, e)
		}
	}
	slices.SortFunc(due, func(a, b *outboxEntry) int {
		if a.seq < b.seq {
			return -1
		}
		return 1
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.OutboxMessage, 0, len(due))
	for _, e := range due {
		msg := e.msg
		msg.Payload = slices.Clone(msg.Payload)
		out = append(out, msg)
	}
	return out, nil
}

func (r *OutboxRepository) Ack(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return domain.ErrOutboxMessageNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *OutboxRepository) Defer(_ context.Context, id string, availableAt time.Time, lastErr string) error {
	return r.update(id, func(e *outboxEntry) {
		e.msg.Attempts++
		e.msg.AvailableAt = availableAt
		e.msg.LastError = lastErr
	})
}

func (r *OutboxRepository) Bury(_ context.Context, id string, lastErr string) error {
	return r.update(id, func(e *outboxEntry) {
		e.msg.Attempts++
		e.msg.LastError = lastErr
		e.state = outboxDead
	})
}

func (r *OutboxRepository) update(id string, fn func(*outboxEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.state != outboxPending {
		return domain.ErrOutboxMessageNotFound
	}
	fn(e)
	return nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.OutboxStats
	for _, e := range r.entries {
		switch e.state {
		case outboxDead:
			stats.Dead++
		case outboxPending:
			stats.Pending++
			if stats.OldestPendingAt.IsZero() || e.msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = e.msg.CreatedAt
			}
		}
	}
	return stats, nil
}

// Dead возвращает события, для которых доставка прекращена.
func (r *OutboxRepository) Dead() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.OutboxMessage
	for _, e := range r.entries {
		if e.state == outboxDead {
			out = append(out, e.msg)
		}
	}
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
