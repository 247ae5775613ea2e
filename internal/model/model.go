// Package model defines the core domain types for the organization events engine.
package model

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
)

// Role names recognised by the engine.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Actor is the authenticated caller attached to every command.
type Actor struct {
	TenantID string   `json:"tenant_id"`
	ActorID  string   `json:"actor_id"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the actor carries the named role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Event represents a tenant-owned event that members can register for.
type Event struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Location    string      `json:"location,omitempty"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
	Capacity    *int        `json:"capacity,omitempty"`
	Price       *float64    `json:"price,omitempty"`
	Currency    string      `json:"currency,omitempty"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`

	// Registered is the live registration count, filled on read paths.
	Registered int `json:"registered"`
}

// IsFull returns true when a capacity is set and no seats remain.
func (e *Event) IsFull(live int) bool {
	return e.Capacity != nil && live >= *e.Capacity
}

// RegistrationStatus is the state of a live registration.
type RegistrationStatus string

const RegistrationConfirmed RegistrationStatus = "confirmed"

// Registration represents a member's seat on an event.
type Registration struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenant_id"`
	EventID        string             `json:"event_id"`
	MemberID       string             `json:"member_id"`
	MemberEmail    string             `json:"member_email,omitempty"`
	Status         RegistrationStatus `json:"status"`
	ReminderSentAt *time.Time         `json:"reminder_sent_at,omitempty"`
	ReminderCount  int                `json:"reminder_count"`
	CreatedAt      time.Time          `json:"created_at"`
}

// AuditAction is the closed set of audited domain actions.
type AuditAction string

const (
	ActionEventPublished       AuditAction = "event.published"
	ActionCapacityUpdated      AuditAction = "event.capacity.updated"
	ActionPricingUpdated       AuditAction = "event.pricing.updated"
	ActionRegistrationCreated  AuditAction = "event.registration.created"
	ActionRegistrationCanceled AuditAction = "event.registration.canceled"
	ActionReminderSent         AuditAction = "event.reminder.sent"
)

// AuditRecord is an immutable fact about a completed mutation.
type AuditRecord struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	EventID   string         `json:"event_id"`
	Action    AuditAction    `json:"action"`
	ActorID   string         `json:"actor_id"`
	Seq       int64          `json:"seq"`
	CreatedAt time.Time      `json:"created_at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ReminderIntent is a fire-once instruction for the delivery collaborator.
type ReminderIntent struct {
	TenantID    string    `json:"tenant_id"`
	EventID     string    `json:"event_id"`
	EventTitle  string    `json:"event_title"`
	MemberID    string    `json:"member_id"`
	MemberEmail string    `json:"member_email,omitempty"`
	StartDate   time.Time `json:"start_date"`
	Location    string    `json:"location,omitempty"`
}

// CreateEventRequest is the payload for creating a new event.
// Dates are kept as strings so malformed values surface as field issues.
type CreateEventRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Capacity    *int     `json:"capacity"`
	Price       *float64 `json:"price"`
	Currency    string   `json:"currency"`
}

// UpdateCapacityRequest is the payload for changing an event's capacity.
type UpdateCapacityRequest struct {
	Capacity *int `json:"capacity"`
}

// UpdatePricingRequest is the payload for changing an event's price.
type UpdatePricingRequest struct {
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
}

// RegisterRequest is the payload for registering for an event. MemberID
// defaults to the calling actor.
type RegisterRequest struct {
	MemberID    string `json:"member_id"`
	MemberEmail string `json:"member_email"`
}

// Page is one page of upcoming events.
type Page struct {
	Items      []Event `json:"items"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalItems int     `json:"total_items"`
	TotalPages int     `json:"total_pages"`
}

// ReminderRun summarises one reminder scan.
type ReminderRun struct {
	TenantID string `json:"tenant_id"`
	Sent     int    `json:"sent"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Kind   string       `json:"kind,omitempty"`
	Code   string       `json:"code,omitempty"`
	Issues []FieldIssue `json:"issues,omitempty"`
}

// FieldIssue names one failed field-level check.
type FieldIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}
