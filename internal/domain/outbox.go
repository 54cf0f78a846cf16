package domain

import "time"

// OutboxMessage — событие, ожидающее доставки в брокер.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// Attempts — число неудачных доставок.
	Attempts    int
	LastError   string
	AvailableAt time.Time
	CreatedAt   time.Time
}

// OutboxStats описывает backlog outbox.
type OutboxStats struct {
	Pending         int
	Dead            int
	OldestPendingAt time.Time
}
