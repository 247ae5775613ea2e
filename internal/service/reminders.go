package service

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/metrics"
	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"github.com/Shivanand-hulikatti/orgevents/internal/repository"
)

// RunReminders emits one reminder intent for every live registration on a
// published event of the actor's tenant that starts within [now, now+24h)
// and has not been reminded yet. It returns the number of intents emitted.
//
// The decision to remind and the reminderSentAt write happen under the
// event's lock, so overlapping scans never remind the same registration
// twice. Events are locked one at a time. A zero now means the service clock.
func (s *EventService) RunReminders(ctx context.Context, actor model.Actor, now time.Time) (sent int, err error) {
	logger := s.loggerWith(ctx, "RunReminders", actor)
	defer func() { finish(ctx, logger.With("sent", sent), "RunReminders", err, "reminder scan complete") }()

	if err = authorize(actor, model.RoleAdmin); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = s.now()
	}
	now = now.UTC()

	started := time.Now()
	defer func() {
		metrics.ReminderScanDuration.Observe(float64(time.Since(started).Milliseconds()))
	}()

	filter := repository.EventFilter{
		Status:      model.StatusPublished,
		StartFrom:   now,
		StartBefore: now.Add(ReminderWindow),
	}
	events, err := s.store.ListEvents(ctx, actor.TenantID, filter)
	if err != nil {
		return 0, mapStoreError(err, "events")
	}

	for _, candidate := range events {
		if err = ctx.Err(); err != nil {
			return sent, err
		}
		n, scanErr := s.remindEvent(ctx, actor, candidate.ID, filter, now)
		sent += n
		if scanErr != nil {
			if errors.Is(scanErr, repository.ErrNotFound) {
				continue
			}
			return sent, mapStoreError(scanErr, "event")
		}
	}
	return sent, nil
}

func (s *EventService) remindEvent(ctx context.Context, actor model.Actor, eventID string, filter repository.EventFilter, now time.Time) (int, error) {
	logger := s.loggerWith(ctx, "RunReminders", actor, "event_id", eventID)
	var intents []model.ReminderIntent
	err := s.store.WithEvent(ctx, actor.TenantID, eventID, func(tx repository.EventTx) error {
		e := tx.Event()
		if !filter.Match(e) {
			return nil
		}
		regs, err := tx.Registrations(ctx)
		if err != nil {
			return err
		}
		for _, r := range regs {
			if r.ReminderSentAt != nil {
				continue
			}
			updated, err := tx.MarkReminded(ctx, r.MemberID, now)
			if errors.Is(err, repository.ErrAlreadyReminded) {
				continue
			}
			if err != nil {
				return err
			}
			s.recordOnCommit(tx, logger, actor, eventID, model.ActionReminderSent, map[string]any{
				"registration_id": updated.ID,
				"member_id":       updated.MemberID,
				"reminder_count":  updated.ReminderCount,
				"sent_at":         now.Format(time.RFC3339Nano),
			})
			intents = append(intents, model.ReminderIntent{
				TenantID:    e.TenantID,
				EventID:     e.ID,
				EventTitle:  e.Title,
				MemberID:    r.MemberID,
				MemberEmail: r.MemberEmail,
				StartDate:   e.StartDate,
				Location:    e.Location,
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, intent := range intents {
		if err := s.notifier.Enqueue(ctx, intent); err != nil {
			logger.WarnContext(ctx, "reminder delivery rejected", "member_id", intent.MemberID, "error", err)
		}
	}
	metrics.RemindersEmitted.Add(float64(len(intents)))
	return len(intents), nil
}
