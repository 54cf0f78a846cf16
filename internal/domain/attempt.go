package domain

import "time"

// AttemptStatus — состояние попытки оформления заказа.
type AttemptStatus string

const (
	// AttemptPending: заявка передана системе учёта, ответа ещё нет.
	AttemptPending AttemptStatus = "pending"
	// AttemptAccepted: система учёта приняла заказ.
	AttemptAccepted AttemptStatus = "accepted"
	// AttemptRejected: система учёта отказала, причина сохранена в Reason.
	AttemptRejected AttemptStatus = "rejected"
)

// Valid проверяет, что статус известен.
func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptPending, AttemptAccepted, AttemptRejected:
		return true
	default:
		return false
	}
}

// Final сообщает, что по попытке уже получен ответ.
func (s AttemptStatus) Final() bool {
	return s == AttemptAccepted || s == AttemptRejected
}

// SubmissionAttempt — след одной попытки оформления: токен, отпечаток заявки и итог.
type SubmissionAttempt struct {
	Token string
	// Fingerprint — хэш содержимого заявки без токена.
	Fingerprint string
	Status      AttemptStatus
	Reason      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired сообщает, что срок хранения попытки истёк к моменту now.
func (a SubmissionAttempt) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}
