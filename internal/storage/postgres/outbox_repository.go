package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/simosh/storefront/internal/domain"
)

// Доставленные события удаляются, в таблице остаются только pending и dead.
type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Attempts = 0
	msg.LastError = ""
	msg.CreatedAt = time.Now().UTC()
	if msg.AvailableAt.IsZero() {
		msg.AvailableAt = msg.CreatedAt
	}
	if msg.Payload == nil {
		msg.Payload = []byte{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload, available_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.AvailableAt.UTC(), msg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message %s: duplicate id", msg.ID)
		}
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}
	return msg, nil
}

func (r *outboxRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
		       attempts, last_error, available_at, created_at
		FROM outbox_messages
		WHERE state = 'pending' AND available_at <= $1
		ORDER BY created_at, id
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due outbox messages: %w", err)
	}
	defer rows.Close()

	var due []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(
			&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload,
			&msg.Attempts, &msg.LastError, &msg.AvailableAt, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msg.AvailableAt = msg.AvailableAt.UTC()
		msg.CreatedAt = msg.CreatedAt.UTC()
		due = append(due, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return due, nil
}

func (r *outboxRepository) Ack(ctx context.Context, id string) error {
	return r.exec(ctx, "ack", `DELETE FROM outbox_messages WHERE id = $1`, id)
}

func (r *outboxRepository) Defer(ctx context.Context, id string, availableAt time.Time, lastErr string) error {
	return r.exec(ctx, "defer", `
		UPDATE outbox_messages
		SET attempts = attempts + 1, available_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND state = 'pending'
	`, id, availableAt.UTC(), lastErr)
}

func (r *outboxRepository) Bury(ctx context.Context, id string, lastErr string) error {
	return r.exec(ctx, "bury", `
		UPDATE outbox_messages
		SET state = 'dead', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1 AND state = 'pending'
	`, id, lastErr)
}

func (r *outboxRepository) exec(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s outbox message: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s outbox message rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.ErrOutboxMessageNotFound
	}
	return nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state = 'pending'),
			COUNT(*) FILTER (WHERE state = 'dead'),
			MIN(created_at) FILTER (WHERE state = 'pending')
		FROM outbox_messages
	`).Scan(&stats.Pending, &stats.Dead, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
