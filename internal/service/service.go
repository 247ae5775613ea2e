// Package service implements the event registration and lifecycle engine:
// validation, role checks, per-event serialized mutations and audit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/logging"
	"github.com/Shivanand-hulikatti/orgevents/internal/metrics"
	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"github.com/Shivanand-hulikatti/orgevents/internal/repository"
	"github.com/google/uuid"
)

// ReminderWindow is how far ahead of now an event may start and still be
// picked up by RunReminders.
const ReminderWindow = 24 * time.Hour

// Notifier accepts reminder intents for delivery. The engine never retries.
type Notifier interface {
	Enqueue(ctx context.Context, intent model.ReminderIntent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, intent model.ReminderIntent) error

// Enqueue calls f.
func (f NotifierFunc) Enqueue(ctx context.Context, intent model.ReminderIntent) error {
	return f(ctx, intent)
}

// EventService orchestrates the event catalog, the registration ledger and
// the reminder scheduler for every tenant.
type EventService struct {
	store       repository.Store
	audit       repository.AuditLog
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// Option customises an EventService.
type Option func(*EventService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *EventService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the identifier source.
func WithIDGenerator(next func() string) Option {
	return func(s *EventService) {
		if next != nil {
			s.idGenerator = next
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *EventService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the reminder delivery collaborator.
func WithNotifier(n Notifier) Option {
	return func(s *EventService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.Store, audit repository.AuditLog, opts ...Option) *EventService {
	s := &EventService{
		store:       store,
		audit:       audit,
		idGenerator: uuid.NewString,
		now:         time.Now,
		logger:      slog.Default(),
	}
	s.notifier = NotifierFunc(func(ctx context.Context, intent model.ReminderIntent) error {
		s.logger.DebugContext(ctx, "reminder intent discarded, no notifier configured",
			"tenant_id", intent.TenantID, "event_id", intent.EventID, "member_id", intent.MemberID)
		return nil
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventService) loggerWith(ctx context.Context, operation string, actor model.Actor, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = s.logger
	}
	pairs := []any{
		"service", "EventService",
		"operation", operation,
		"tenant_id", actor.TenantID,
		"actor_id", actor.ActorID,
	}
	return logger.With(append(pairs, attrs...)...)
}

// finish records the command outcome. Rejections are expected traffic and
// logged at info; anything untyped is a fault.
func finish(ctx context.Context, logger *slog.Logger, operation string, err error, success string) {
	kind := ErrorKind(err)
	metrics.CommandsTotal.WithLabelValues(operation, kind).Inc()
	switch kind {
	case "ok":
		logger.InfoContext(ctx, success)
	case "unexpected":
		logger.ErrorContext(ctx, "command failed", "error", err, "error_kind", kind)
	default:
		logger.InfoContext(ctx, "command rejected", "error", err, "error_kind", kind)
	}
}

// authorize checks the actor is present and, when role is non-empty, holds it.
func authorize(actor model.Actor, role string) error {
	if actor.TenantID == "" || actor.ActorID == "" {
		return newError(KindUnauthorized, "", "no authenticated actor")
	}
	if role != "" && !actor.HasRole(role) {
		return newError(KindForbidden, "", fmt.Sprintf("role %q required", role))
	}
	return nil
}

// mapStoreError translates repository sentinels into command errors.
func mapStoreError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound(what)
	case errors.Is(err, repository.ErrDuplicateTitle):
		return conflict(CodeDuplicate, "an event with this title already exists")
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return newError(KindDuplicateRegistration, "", "member already registered for this event")
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return fmt.Errorf("%s: %w", what, err)
}

// recordOnCommit queues an audit record on tx. It is appended once the
// mutation commits and before the event is released, so records of one event
// follow the order of its commits.
func (s *EventService) recordOnCommit(tx repository.EventTx, logger *slog.Logger, actor model.Actor, eventID string, action model.AuditAction, meta map[string]any) {
	tx.OnCommit(func(ctx context.Context) {
		s.record(ctx, logger, actor, eventID, action, meta)
	})
}

// record appends an audit record. A failure is logged and counted but never
// returned to the caller.
func (s *EventService) record(ctx context.Context, logger *slog.Logger, actor model.Actor, eventID string, action model.AuditAction, meta map[string]any) {
	if s.audit == nil {
		return
	}
	rec := model.AuditRecord{
		ID:        s.idGenerator(),
		TenantID:  actor.TenantID,
		EventID:   eventID,
		Action:    action,
		ActorID:   actor.ActorID,
		CreatedAt: s.now().UTC(),
		Meta:      meta,
	}
	if _, err := s.audit.Append(ctx, rec); err != nil {
		metrics.AuditFailures.Inc()
		logger.ErrorContext(ctx, "audit append failed", "action", string(action), "error", err)
	}
}

// AuditTrail returns the tenant's audit records for an administrator.
func (s *EventService) AuditTrail(ctx context.Context, actor model.Actor) ([]model.AuditRecord, error) {
	if err := authorize(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.List(ctx, actor.TenantID)
}
