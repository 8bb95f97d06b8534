// Package shared holds the building blocks every settlement aggregate uses:
// identity and timestamps, optimistic versions, pending domain events and
// coded domain errors.
package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseAggregateRoot carries identity, row timestamps, a version that grows
// with every state change, and the events raised since the aggregate was
// loaded. Services publish those after commit.
type BaseAggregateRoot struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int

	pending []DomainEvent
}

// NewBaseAggregateRoot returns a version 1 root with a fresh ID
func NewBaseAggregateRoot() BaseAggregateRoot {
	now := time.Now().UTC()
	return BaseAggregateRoot{ID: uuid.New(), CreatedAt: now, UpdatedAt: now, Version: 1}
}

// Touch records a state change
func (a *BaseAggregateRoot) Touch() {
	a.UpdatedAt = time.Now().UTC()
	a.Version++
}

func (a *BaseAggregateRoot) Raise(event DomainEvent) {
	a.pending = append(a.pending, event)
}

func (a *BaseAggregateRoot) PendingEvents() []DomainEvent {
	return a.pending
}

// TakeEvents returns the pending events and forgets them
func (a *BaseAggregateRoot) TakeEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	return events
}
