package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Shivanand-hulikatti/orgevents/internal/metrics"
	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"github.com/Shivanand-hulikatti/orgevents/internal/repository"
)

// Register books a seat for a member on a published event.
//
// The duplicate check, the capacity check and the insert run inside one
// per-event transaction, so two concurrent calls racing for the last seat
// cannot both succeed.
func (s *EventService) Register(ctx context.Context, actor model.Actor, eventID string, req model.RegisterRequest) (reg model.Registration, err error) {
	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		memberID = actor.ActorID
	}

	logger := s.loggerWith(ctx, "Register", actor, "event_id", eventID, "member_id", memberID)
	defer func() { finish(ctx, logger, "Register", err, "registration created") }()

	if err = authorizeMember(actor, memberID); err != nil {
		return model.Registration{}, err
	}

	err = s.store.WithEvent(ctx, actor.TenantID, eventID, func(tx repository.EventTx) error {
		e := tx.Event()
		if e.Status != model.StatusPublished {
			return newError(KindInvalidStatus, "", "event is not open for registration")
		}

		_, err := tx.Registration(ctx, memberID)
		switch {
		case err == nil:
			return newError(KindDuplicateRegistration, "", "member already registered for this event")
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		count, err := tx.LiveCount(ctx)
		if err != nil {
			return err
		}
		if e.IsFull(count) {
			return newError(KindEventFull, "", "event is fully booked")
		}

		reg = model.Registration{
			ID:          s.idGenerator(),
			TenantID:    actor.TenantID,
			EventID:     eventID,
			MemberID:    memberID,
			MemberEmail: strings.ToLower(strings.TrimSpace(req.MemberEmail)),
			Status:      model.RegistrationConfirmed,
			CreatedAt:   s.now().UTC(),
		}
		if err := tx.InsertRegistration(ctx, reg); err != nil {
			return err
		}
		s.recordOnCommit(tx, logger, actor, eventID, model.ActionRegistrationCreated, map[string]any{
			"after": map[string]any{
				"registration_id": reg.ID,
				"member_id":       memberID,
				"live_count":      count + 1,
			},
		})
		return nil
	})
	if err != nil {
		return model.Registration{}, mapStoreError(err, "event")
	}

	metrics.RegistrationChanges.WithLabelValues("created").Inc()
	return reg, nil
}

// CancelRegistration removes a member's registration. The record is deleted
// outright and the seat becomes available immediately.
func (s *EventService) CancelRegistration(ctx context.Context, actor model.Actor, eventID, memberID string) (err error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		memberID = actor.ActorID
	}

	logger := s.loggerWith(ctx, "CancelRegistration", actor, "event_id", eventID, "member_id", memberID)
	defer func() { finish(ctx, logger, "CancelRegistration", err, "registration canceled") }()

	if err = authorizeMember(actor, memberID); err != nil {
		return err
	}

	err = s.store.WithEvent(ctx, actor.TenantID, eventID, func(tx repository.EventTx) error {
		r, err := tx.Registration(ctx, memberID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("registration")
			}
			return err
		}
		if err := tx.DeleteRegistration(ctx, memberID); err != nil {
			return err
		}
		live, err := tx.LiveCount(ctx)
		if err != nil {
			return err
		}
		s.recordOnCommit(tx, logger, actor, eventID, model.ActionRegistrationCanceled, map[string]any{
			"before": map[string]any{
				"registration_id": r.ID,
				"member_id":       memberID,
			},
			"after": map[string]any{"live_count": live},
		})
		return nil
	})
	if err != nil {
		return mapStoreError(err, "event")
	}

	metrics.RegistrationChanges.WithLabelValues("canceled").Inc()
	return nil
}

// ListRegistrations returns the live registrations of an event in booking order.
func (s *EventService) ListRegistrations(ctx context.Context, actor model.Actor, eventID string) ([]model.Registration, error) {
	if err := authorize(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	var regs []model.Registration
	err := s.store.WithEvent(ctx, actor.TenantID, eventID, func(tx repository.EventTx) error {
		var err error
		regs, err = tx.Registrations(ctx)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err, "event")
	}
	return regs, nil
}

// authorizeMember requires the member role. Acting on behalf of another
// member additionally requires admin.
func authorizeMember(actor model.Actor, memberID string) error {
	if err := authorize(actor, model.RoleMember); err != nil {
		return err
	}
	if memberID != actor.ActorID && !actor.HasRole(model.RoleAdmin) {
		return newError(KindForbidden, "", "cannot act on another member's registration")
	}
	return nil
}
