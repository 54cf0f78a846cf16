package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simosh/storefront/internal/domain"
)

const attemptColumns = `token, fingerprint, status, reason, expires_at, created_at, updated_at`

type attemptRepository struct {
	db *sql.DB
}

// NewAttemptRepository создаёт PostgreSQL-хранилище попыток оформления.
func NewAttemptRepository(store *Store) domain.AttemptRepository {
	return &attemptRepository{db: store.DB()}
}

func (r *attemptRepository) Reserve(ctx context.Context, token, fingerprint string, expiresAt time.Time) (domain.SubmissionAttempt, error) {
	token = strings.TrimSpace(token)
	fingerprint = strings.TrimSpace(fingerprint)
	switch {
	case token == "":
		return domain.SubmissionAttempt{}, domain.ErrAttemptTokenRequired
	case fingerprint == "":
		return domain.SubmissionAttempt{}, domain.ErrAttemptFingerprintRequired
	}
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(24 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Пустой результат RETURNING означает, что токен уже занят.
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO submission_attempts (token, fingerprint, status, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING
		RETURNING `+attemptColumns,
		token, fingerprint, string(domain.AttemptPending), expiresAt.UTC(),
	)
	attempt, err := scanAttempt(row)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.SubmissionAttempt{}, fmt.Errorf("reserve attempt: %w", err)
	}

	existing, err := r.get(ctx, token)
	if err != nil {
		return domain.SubmissionAttempt{}, err
	}
	if existing.Fingerprint != fingerprint {
		return existing, domain.ErrAttemptFingerprintMismatch
	}
	return existing, domain.ErrAttemptExists
}

func (r *attemptRepository) Get(ctx context.Context, token string) (domain.SubmissionAttempt, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.SubmissionAttempt{}, domain.ErrAttemptTokenRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.get(ctx, token)
}

func (r *attemptRepository) get(ctx context.Context, token string) (domain.SubmissionAttempt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM submission_attempts WHERE token = $1`, token)
	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SubmissionAttempt{}, domain.ErrAttemptNotFound
		}
		return domain.SubmissionAttempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

func (r *attemptRepository) Resolve(ctx context.Context, token string, status domain.AttemptStatus, reason string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrAttemptTokenRequired
	}
	if !status.Final() {
		return domain.ErrAttemptStatusInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE submission_attempts
		SET status = $2, reason = $3, updated_at = NOW()
		WHERE token = $1
	`, token, string(status), reason)
	if err != nil {
		return fmt.Errorf("resolve attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve attempt rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (r *attemptRepository) Release(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrAttemptTokenRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM submission_attempts
		WHERE token = $1 AND status = $2
	`, token, string(domain.AttemptPending))
	if err != nil {
		return fmt.Errorf("release attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release attempt rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (r *attemptRepository) Purge(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}
	// LIMIT NULL в PostgreSQL означает отсутствие ограничения.
	var batch any = limit
	if limit <= 0 {
		batch = nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM submission_attempts
		WHERE token IN (
			SELECT token FROM submission_attempts
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
	`, before.UTC(), batch)
	if err != nil {
		return 0, fmt.Errorf("purge attempts: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge attempts rows affected: %w", err)
	}
	return int(deleted), nil
}

func scanAttempt(row rowScanner) (domain.SubmissionAttempt, error) {
	var (
		attempt domain.SubmissionAttempt
		status  string
	)
	if err := row.Scan(
		&attempt.Token,
		&attempt.Fingerprint,
		&status,
		&attempt.Reason,
		&attempt.ExpiresAt,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	); err != nil {
		return domain.SubmissionAttempt{}, err
	}
	attempt.Status = domain.AttemptStatus(status)
	attempt.ExpiresAt = attempt.ExpiresAt.UTC()
	attempt.CreatedAt = attempt.CreatedAt.UTC()
	attempt.UpdatedAt = attempt.UpdatedAt.UTC()
	return attempt, nil
}

var _ domain.AttemptRepository = (*attemptRepository)(nil)
