package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
)

func TestEventService_RunReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e2 := h.publishedEvent(t, "t1", "E2", 6*time.Hour, nil)
	h.register(t, "t1", e2.ID, "m1")

	sent, err := h.svc.RunReminders(ctx, admin("t1"), h.clock.Now())
	if err != nil {
		t.Fatalf("run reminders: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}

	intent := h.notifier.intents[0]
	want := model.ReminderIntent{
		TenantID:    "t1",
		EventID:     e2.ID,
		EventTitle:  "E2",
		MemberID:    "m1",
		MemberEmail: "m1@example.org",
		StartDate:   e2.StartDate,
		Location:    "Main Hall",
	}
	if intent != want {
		t.Fatalf("unexpected intent\n got %+v\nwant %+v", intent, want)
	}

	sent, err = h.svc.RunReminders(ctx, admin("t1"), h.clock.Now())
	if err != nil || sent != 0 {
		t.Fatalf("expected second run to send nothing, got %d %v", sent, err)
	}

	regs, _ := h.svc.ListRegistrations(ctx, admin("t1"), e2.ID)
	if regs[0].ReminderSentAt == nil || !regs[0].ReminderSentAt.Equal(h.clock.Now()) || regs[0].ReminderCount != 1 {
		t.Fatalf("expected reminder bookkeeping, got %+v", regs[0])
	}
	if actions := h.auditActions(t, "t1"); actions[len(actions)-1] != model.ActionReminderSent {
		t.Fatalf("expected reminder audit record, got %v", actions)
	}
}

func TestEventService_RunRemindersWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outside := h.publishedEvent(t, "t1", "E3", 48*time.Hour, nil)
	boundary := h.publishedEvent(t, "t1", "Exactly a day", ReminderWindow, nil)
	past := h.publishedEvent(t, "t1", "Already started", time.Hour, nil)
	h.createEvent(t, "t1", "Unpublished", 2*time.Hour, nil)
	for _, id := range []string{outside.ID, boundary.ID, past.ID} {
		h.register(t, "t1", id, "m1")
	}
	h.clock.Advance(2 * time.Hour)

	sent, err := h.svc.RunReminders(ctx, admin("t1"), h.clock.Now())
	if err != nil {
		t.Fatalf("run reminders: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected only the boundary event (now inside the window), got %d", sent)
	}
	if h.notifier.intents[0].EventID != boundary.ID {
		t.Fatalf("unexpected event reminded: %s", h.notifier.intents[0].EventID)
	}

	h2 := newHarness(t)
	e3 := h2.publishedEvent(t, "t1", "E3", 48*time.Hour, nil)
	h2.register(t, "t1", e3.ID, "m1")
	edge := h2.publishedEvent(t, "t1", "Edge", ReminderWindow, nil)
	h2.register(t, "t1", edge.ID, "m1")
	if sent, err := h2.svc.RunReminders(ctx, admin("t1"), time.Time{}); err != nil || sent != 0 {
		t.Fatalf("expected no reminders outside [now, now+24h), got %d %v", sent, err)
	}
}

func TestEventService_RunRemindersPicksUpLateRegistrations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.publishedEvent(t, "t1", "Evening talk", 10*time.Hour, nil)
	h.register(t, "t1", e.ID, "m1")

	if sent, _ := h.svc.RunReminders(ctx, admin("t1"), time.Time{}); sent != 1 {
		t.Fatalf("expected 1, got %d", sent)
	}
	h.register(t, "t1", e.ID, "m2")
	h.clock.Advance(time.Hour)
	if sent, _ := h.svc.RunReminders(ctx, admin("t1"), time.Time{}); sent != 1 {
		t.Fatalf("expected only the new registration, got %d", sent)
	}
	if h.notifier.intents[1].MemberID != "m2" {
		t.Fatalf("expected m2 reminded, got %+v", h.notifier.intents[1])
	}
}

func TestEventService_RunRemindersConcurrentScans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const members = 20
	events := []model.Event{
		h.publishedEvent(t, "t1", "Morning", 3*time.Hour, nil),
		h.publishedEvent(t, "t1", "Evening", 12*time.Hour, nil),
	}
	for _, e := range events {
		for i := 0; i < members; i++ {
			h.register(t, "t1", e.ID, "m"+string(rune('a'+i)))
		}
	}

	var (
		wg    sync.WaitGroup
		total atomic.Int64
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sent, err := h.svc.RunReminders(ctx, admin("t1"), time.Time{})
			if err != nil {
				t.Errorf("run reminders: %v", err)
			}
			total.Add(int64(sent))
		}()
	}
	wg.Wait()

	if want := int64(len(events) * members); total.Load() != want || int64(h.notifier.count()) != want {
		t.Fatalf("expected exactly %d reminders, got %d (notifier %d)", want, total.Load(), h.notifier.count())
	}
	for _, e := range events {
		regs, _ := h.svc.ListRegistrations(ctx, admin("t1"), e.ID)
		for _, r := range regs {
			if r.ReminderCount != 1 {
				t.Fatalf("registration %s reminded %d times", r.MemberID, r.ReminderCount)
			}
		}
	}
}

func TestEventService_RunRemindersDeliveryFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("queue full")
	e := h.publishedEvent(t, "t1", "Flaky", 5*time.Hour, nil)
	h.register(t, "t1", e.ID, "m1")

	sent, err := h.svc.RunReminders(context.Background(), admin("t1"), time.Time{})
	if err != nil || sent != 1 {
		t.Fatalf("expected the intent to count as emitted, got %d %v", sent, err)
	}
	h.notifier.err = nil
	if sent, _ := h.svc.RunReminders(context.Background(), admin("t1"), time.Time{}); sent != 0 {
		t.Fatalf("expected no retry, got %d", sent)
	}
}
