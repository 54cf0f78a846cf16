package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/simosh/storefront/internal/domain"
)

const defaultAttemptTTL = 24 * time.Hour

// AttemptRepository хранит попытки оформления в памяти процесса.
type AttemptRepository struct {
	mu       sync.Mutex
	attempts map[string]domain.SubmissionAttempt
	now      func() time.Time
}

// NewAttemptRepository создаёт in-memory реализацию AttemptRepository.
func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{
		attempts: make(map[string]domain.SubmissionAttempt),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *AttemptRepository) Reserve(_ context.Context, token, fingerprint string, expiresAt time.Time) (domain.SubmissionAttempt, error) {
	token = strings.TrimSpace(token)
	fingerprint = strings.TrimSpace(fingerprint)
	switch {
	case token == "":
		return domain.SubmissionAttempt{}, domain.ErrAttemptTokenRequired
	case fingerprint == "":
		return domain.SubmissionAttempt{}, domain.ErrAttemptFingerprintRequired
	}

	now := r.now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultAttemptTTL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.attempts[token]; ok {
		if existing.Fingerprint != fingerprint {
			return existing, domain.ErrAttemptFingerprintMismatch
		}
		return existing, domain.ErrAttemptExists
	}

	attempt := domain.SubmissionAttempt{
		Token:       token,
		Fingerprint: fingerprint,
		Status:      domain.AttemptPending,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.attempts[token] = attempt
	return attempt, nil
}

func (r *AttemptRepository) Get(_ context.Context, token string) (domain.SubmissionAttempt, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.SubmissionAttempt{}, domain.ErrAttemptTokenRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[token]
	if !ok {
		return domain.SubmissionAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (r *AttemptRepository) Resolve(_ context.Context, token string, status domain.AttemptStatus, reason string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrAttemptTokenRequired
	}
	if !status.Final() {
		return domain.ErrAttemptStatusInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[token]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.Status = status
	attempt.Reason = reason
	attempt.UpdatedAt = r.now()
	r.attempts[token] = attempt
	return nil
}

func (r *AttemptRepository) Release(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrAttemptTokenRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[token]
	if !ok || attempt.Status != domain.AttemptPending {
		return domain.ErrAttemptNotFound
	}
	delete(r.attempts, token)
	return nil
}

// Purge удаляет самые старые из истёкших попыток.
func (r *AttemptRepository) Purge(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []domain.SubmissionAttempt
	for _, attempt := range r.attempts {
		if attempt.Expired(before) {
			expired = append(expired, attempt)
		}
	}
	slices.SortFunc(expired, func(a, b domain.SubmissionAttempt) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, attempt := range expired {
		delete(r.attempts, attempt.Token)
	}
	return len(expired), nil
}

// Len возвращает число хранимых попыток.
func (r *AttemptRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

var _ domain.AttemptRepository = (*AttemptRepository)(nil)
