package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"github.com/Shivanand-hulikatti/orgevents/internal/repository"
)

// Pagination bounds for ListUpcoming.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateEvent validates the request and stores a new draft event. Creation is
// not audited.
func (s *EventService) CreateEvent(ctx context.Context, actor model.Actor, req model.CreateEventRequest) (event model.Event, err error) {
	logger := s.loggerWith(ctx, "CreateEvent", actor)
	defer func() { finish(ctx, logger.With("event_id", event.ID), "CreateEvent", err, "event created") }()

	if err = authorize(actor, model.RoleAdmin); err != nil {
		return model.Event{}, err
	}

	var problems issues
	title := strings.TrimSpace(req.Title)
	if title == "" {
		problems.add("title", IssueRequired)
	}
	start, startOK := parseDate(&problems, "start_date", req.StartDate)
	end, endOK := parseDate(&problems, "end_date", req.EndDate)
	if startOK && endOK && !start.Before(end) {
		problems.add("end_date", IssueStartAfterEnd)
	}
	if req.Capacity != nil && *req.Capacity < 0 {
		problems.add("capacity", IssueNegative)
	}
	if req.Price != nil && *req.Price < 0 {
		problems.add("price", IssueNegative)
	}
	if err = problems.err(); err != nil {
		return model.Event{}, err
	}

	event = model.Event{
		ID:          s.idGenerator(),
		TenantID:    actor.TenantID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		StartDate:   start,
		EndDate:     end,
		Capacity:    cloneInt(req.Capacity),
		Price:       cloneFloat(req.Price),
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:      model.StatusDraft,
		CreatedAt:   s.now().UTC(),
	}
	if err = s.store.CreateEvent(ctx, event); err != nil {
		return model.Event{}, mapStoreError(err, "event")
	}
	return event, nil
}

// GetEvent returns a single event visible to the caller's tenant.
func (s *EventService) GetEvent(ctx context.Context, actor model.Actor, eventID string) (model.Event, error) {
	if err := authorize(actor, ""); err != nil {
		return model.Event{}, err
	}
	e, err := s.store.GetEvent(ctx, actor.TenantID, eventID)
	if err != nil {
		return model.Event{}, mapStoreError(err, "event")
	}
	return e, nil
}

// PublishEvent moves a draft event to published. The transition happens once
// and is never reverted.
func (s *EventService) PublishEvent(ctx context.Context, actor model.Actor, eventID string) (event model.Event, err error) {
	logger := s.loggerWith(ctx, "PublishEvent", actor, "event_id", eventID)
	defer func() { finish(ctx, logger, "PublishEvent", err, "event published") }()

	if err = authorize(actor, model.RoleAdmin); err != nil {
		return model.Event{}, err
	}

	err = s.store.WithEvent(ctx, actor.TenantID, eventID, func(tx repository.EventTx) error {
		e := tx.Event()
		if e.Status == model.StatusPublished {
			return conflict(CodeAlreadyPublished, "event is already published")
		}
		if e.Status != model.StatusDraft {
			return newError(KindInvalidStatus, "", "event cannot be published from status "+string(e.Status))
		}

		var problems issues
		if strings.TrimSpace(e.Title) == "" {
			problems.add("title", IssueRequired)
		}
		if e.StartDate.IsZero() {
			problems.add("start_date", IssueRequired)
		}
		if e.EndDate.IsZero() {
			problems.add("end_date", IssueRequired)
		}
		if !e.StartDate.IsZero() && !e.EndDate.IsZero() && !e.StartDate.Before(e.EndDate) {
			problems.add("end_date", IssueStartAfterEnd)
		}
		if err := problems.err(); err != nil {
			return err
		}

		e.Status = model.StatusPublished
		if err := tx.UpdateEvent(ctx, e); err != nil {
			return err
		}
		event = tx.Event()
		s.recordOnCommit(tx, logger, actor, eventID, model.ActionEventPublished, map[string]any{
			"before": map[string]any{"status": string(model.StatusDraft)},
			"after":  map[string]any{"status": string(model.StatusPublished)},
		})
		return nil
	})
	if err != nil {
		return model.Event{}, mapStoreError(err, "event")
	}
	return event, nil
}

// UpdateCapacity changes an event's capacity. The new value may not drop below
// the live registration count, and an unchanged value is a conflict.
func (s *EventService) UpdateCapacity(ctx context.Context, actor model.Actor, eventID string, capacity *int) (event model.Event, err error) {
	logger := s.loggerWith(ctx, "UpdateCapacity", actor, "event_id", eventID)
	defer func() { finish(ctx, logger, "UpdateCapacity", err, "capacity updated") }()

	if err = authorize(actor, model.RoleAdmin); err != nil {
		return model.Event{}, err
	}

	err = s.store.WithEvent(ctx, actor.TenantID, eventID, func(tx repository.EventTx) error {
		e := tx.Event()
		if err := requireEditable(e); err != nil {
			return err
		}

		var problems issues
		switch {
		case capacity == nil:
			problems.add("capacity", IssueRequired)
		case *capacity < 0:
			problems.add("capacity", IssueNegative)
		}
		if err := problems.err(); err != nil {
			return err
		}

		live, err := tx.LiveCount(ctx)
		if err != nil {
			return err
		}
		if *capacity < live {
			problems.add("capacity", IssueBelowRegistrations)
			return problems.err()
		}
		if e.Capacity != nil && *e.Capacity == *capacity {
			return conflict(CodeNoChange, "capacity is unchanged")
		}

		before := cloneInt(e.Capacity)
		e.Capacity = cloneInt(capacity)
		if err := tx.UpdateEvent(ctx, e); err != nil {
			return err
		}
		event = tx.Event()
		s.recordOnCommit(tx, logger, actor, eventID, model.ActionCapacityUpdated, map[string]any{
			"before": map[string]any{"capacity": intOrNil(before)},
			"after":  map[string]any{"capacity": *capacity},
		})
		return nil
	})
	if err != nil {
		return model.Event{}, mapStoreError(err, "event")
	}
	return event, nil
}

// UpdatePricing changes an event's price and currency while the event has not
// yet started.
func (s *EventService) UpdatePricing(ctx context.Context, actor model.Actor, eventID string, req model.UpdatePricingRequest) (event model.Event, err error) {
	logger := s.loggerWith(ctx, "UpdatePricing", actor, "event_id", eventID)
	defer func() { finish(ctx, logger, "UpdatePricing", err, "pricing updated") }()

	if err = authorize(actor, model.RoleAdmin); err != nil {
		return model.Event{}, err
	}

	now := s.now()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	err = s.store.WithEvent(ctx, actor.TenantID, eventID, func(tx repository.EventTx) error {
		e := tx.Event()
		if err := requireEditable(e); err != nil {
			return err
		}
		if !e.StartDate.After(now) {
			return conflict(CodeEventStarted, "pricing cannot change once the event has started")
		}

		var problems issues
		switch {
		case req.Price == nil:
			problems.add("price", IssueRequired)
		case *req.Price < 0:
			problems.add("price", IssueNegative)
		}
		if currency == "" {
			problems.add("currency", IssueRequired)
		}
		if err := problems.err(); err != nil {
			return err
		}

		beforePrice, beforeCurrency := cloneFloat(e.Price), e.Currency
		e.Price = cloneFloat(req.Price)
		e.Currency = currency
		if err := tx.UpdateEvent(ctx, e); err != nil {
			return err
		}
		event = tx.Event()
		s.recordOnCommit(tx, logger, actor, eventID, model.ActionPricingUpdated, map[string]any{
			"before": map[string]any{"price": floatOrNil(beforePrice), "currency": beforeCurrency},
			"after":  map[string]any{"price": *req.Price, "currency": currency},
		})
		return nil
	})
	if err != nil {
		return model.Event{}, mapStoreError(err, "event")
	}
	return event, nil
}

// ListUpcoming returns published events that have not started yet, soonest
// first, one page at a time.
func (s *EventService) ListUpcoming(ctx context.Context, actor model.Actor, page, pageSize int) (model.Page, error) {
	if err := authorize(actor, ""); err != nil {
		return model.Page{}, err
	}

	events, err := s.store.ListEvents(ctx, actor.TenantID, repository.EventFilter{
		Status:    model.StatusPublished,
		StartFrom: s.now(),
	})
	if err != nil {
		return model.Page{}, mapStoreError(err, "events")
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate.Before(events[j].StartDate)
	})

	page, pageSize = normalizePage(page, pageSize)
	total := len(events)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	items := []model.Event{}
	if from := (page - 1) * pageSize; from < total {
		to := min(from+pageSize, total)
		items = events[from:to]
	}
	return model.Page{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize == 0:
		pageSize = DefaultPageSize
	case pageSize < 1:
		pageSize = 1
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func requireEditable(e model.Event) error {
	if e.Status != model.StatusDraft && e.Status != model.StatusPublished {
		return newError(KindInvalidStatus, "", "event is not editable in status "+string(e.Status))
	}
	return nil
}

func parseDate(problems *issues, field, value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		problems.add(field, IssueRequired)
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		problems.add(field, IssueInvalidFormat)
		return time.Time{}, false
	}
	return t.UTC(), true
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
