// Package repository defines the store contract for events, registrations and
// the audit trail, with an in-memory and a PostgreSQL implementation.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist in the tenant.
var ErrNotFound = errors.New("not found")

// ErrDuplicateTitle is returned when a tenant already has an event with the same title.
var ErrDuplicateTitle = errors.New("event title already exists")

// ErrAlreadyRegistered is returned when the member already holds a live registration.
var ErrAlreadyRegistered = errors.New("member already registered for this event")

// ErrAlreadyReminded is returned when a registration already has a reminder recorded.
var ErrAlreadyReminded = errors.New("reminder already recorded")

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Status      model.EventStatus
	StartFrom   time.Time // inclusive
	StartBefore time.Time // exclusive
}

// Match reports whether e passes the filter.
func (f EventFilter) Match(e model.Event) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.StartFrom.IsZero() && e.StartDate.Before(f.StartFrom) {
		return false
	}
	if !f.StartBefore.IsZero() && !e.StartDate.Before(f.StartBefore) {
		return false
	}
	return true
}

// EventTx is a unit of work serialized against every other EventTx on the
// same event. Reads see the locked state; writes are discarded if the
// callback passed to WithEvent returns an error.
//
// Hooks registered with OnCommit run, in order, once the callback has
// returned nil and before the event is released, so their side effects are
// ordered exactly like the transactions that produced them. A hook cannot
// fail the transaction.
type EventTx interface {
	OnCommit(hook func(ctx context.Context))
	Event() model.Event
	UpdateEvent(ctx context.Context, e model.Event) error
	LiveCount(ctx context.Context) (int, error)
	Registration(ctx context.Context, memberID string) (model.Registration, error)
	Registrations(ctx context.Context) ([]model.Registration, error)
	InsertRegistration(ctx context.Context, r model.Registration) error
	DeleteRegistration(ctx context.Context, memberID string) error
	MarkReminded(ctx context.Context, memberID string, at time.Time) (model.Registration, error)
}

// Store owns events and registrations. Every lookup is scoped by tenant; an
// event id from another tenant behaves exactly like a missing one.
type Store interface {
	CreateEvent(ctx context.Context, e model.Event) error
	GetEvent(ctx context.Context, tenantID, eventID string) (model.Event, error)
	// ListEvents returns matching events in insertion order.
	ListEvents(ctx context.Context, tenantID string, filter EventFilter) ([]model.Event, error)
	WithEvent(ctx context.Context, tenantID, eventID string, fn func(tx EventTx) error) error
	Tenants(ctx context.Context) ([]string, error)
}

// AuditLog is the append-only audit trail. Append assigns a per-tenant
// monotonic sequence number.
type AuditLog interface {
	Append(ctx context.Context, rec model.AuditRecord) (model.AuditRecord, error)
	List(ctx context.Context, tenantID string) ([]model.AuditRecord, error)
}
