package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
)

// MemoryStore keeps all state in process. Each tenant has its own index
// lock and each event its own mutex, so tenants never contend and a long
// transaction on one event does not stall another.
type MemoryStore struct {
	tenants sync.Map // tenant id -> *tenantState
}

type tenantState struct {
	mu     sync.RWMutex
	events map[string]*eventState
	order  []*eventState
	titles map[string]string // lower-cased title -> event id
}

type eventState struct {
	mu    sync.Mutex
	event model.Event
	regs  map[string]*model.Registration
	order []string // member ids in registration order
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) tenant(tenantID string, create bool) *tenantState {
	if v, ok := s.tenants.Load(tenantID); ok {
		return v.(*tenantState)
	}
	if !create {
		return nil
	}
	v, _ := s.tenants.LoadOrStore(tenantID, &tenantState{
		events: make(map[string]*eventState),
		titles: make(map[string]string),
	})
	return v.(*tenantState)
}

func (s *MemoryStore) lookup(tenantID, eventID string) *eventState {
	t := s.tenant(tenantID, false)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.events[eventID]
}

// CreateEvent inserts a new event, enforcing case-insensitive title uniqueness
// within the tenant.
func (s *MemoryStore) CreateEvent(_ context.Context, e model.Event) error {
	t := s.tenant(e.TenantID, true)
	key := strings.ToLower(e.Title)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.titles[key]; taken {
		return ErrDuplicateTitle
	}
	st := &eventState{event: e, regs: make(map[string]*model.Registration)}
	t.events[e.ID] = st
	t.order = append(t.order, st)
	t.titles[key] = e.ID
	return nil
}

// GetEvent returns a single event with its live registration count.
func (s *MemoryStore) GetEvent(_ context.Context, tenantID, eventID string) (model.Event, error) {
	st := s.lookup(tenantID, eventID)
	if st == nil {
		return model.Event{}, ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(), nil
}

// ListEvents returns matching events in insertion order.
func (s *MemoryStore) ListEvents(_ context.Context, tenantID string, filter EventFilter) ([]model.Event, error) {
	t := s.tenant(tenantID, false)
	if t == nil {
		return nil, nil
	}
	t.mu.RLock()
	states := make([]*eventState, len(t.order))
	copy(states, t.order)
	t.mu.RUnlock()

	var out []model.Event
	for _, st := range states {
		st.mu.Lock()
		e := st.snapshot()
		st.mu.Unlock()
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Tenants returns every tenant that owns at least one event, sorted.
func (s *MemoryStore) Tenants(_ context.Context) ([]string, error) {
	var ids []string
	s.tenants.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids, nil
}

// WithEvent runs fn while holding the event's lock. Writes made through the
// transaction are undone when fn returns an error; commit hooks run before
// the lock is released.
func (s *MemoryStore) WithEvent(ctx context.Context, tenantID, eventID string, fn func(tx EventTx) error) error {
	st := s.lookup(tenantID, eventID)
	if st == nil {
		return ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tx := &memoryTx{st: st}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

func (st *eventState) snapshot() model.Event {
	e := st.event
	e.Registered = len(st.regs)
	return e
}

// memoryTx records an undo entry per write so a failed callback leaves the
// event untouched.
type memoryTx struct {
	st    *eventState
	undo  []func()
	hooks []func(context.Context)
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) OnCommit(hook func(ctx context.Context)) {
	tx.hooks = append(tx.hooks, hook)
}

func (tx *memoryTx) Event() model.Event {
	return tx.st.snapshot()
}

func (tx *memoryTx) UpdateEvent(_ context.Context, e model.Event) error {
	prev := tx.st.event
	e.ID, e.TenantID, e.Title, e.CreatedAt = prev.ID, prev.TenantID, prev.Title, prev.CreatedAt
	e.Registered = 0
	tx.st.event = e
	tx.undo = append(tx.undo, func() { tx.st.event = prev })
	return nil
}

func (tx *memoryTx) LiveCount(context.Context) (int, error) {
	return len(tx.st.regs), nil
}

func (tx *memoryTx) Registration(_ context.Context, memberID string) (model.Registration, error) {
	r, ok := tx.st.regs[memberID]
	if !ok {
		return model.Registration{}, ErrNotFound
	}
	return *r, nil
}

func (tx *memoryTx) Registrations(context.Context) ([]model.Registration, error) {
	out := make([]model.Registration, 0, len(tx.st.order))
	for _, memberID := range tx.st.order {
		out = append(out, *tx.st.regs[memberID])
	}
	return out, nil
}

func (tx *memoryTx) InsertRegistration(_ context.Context, r model.Registration) error {
	if _, ok := tx.st.regs[r.MemberID]; ok {
		return ErrAlreadyRegistered
	}
	stored := r
	tx.st.regs[r.MemberID] = &stored
	tx.st.order = append(tx.st.order, r.MemberID)
	tx.undo = append(tx.undo, func() { tx.removeMember(r.MemberID) })
	return nil
}

func (tx *memoryTx) DeleteRegistration(_ context.Context, memberID string) error {
	r, ok := tx.st.regs[memberID]
	if !ok {
		return ErrNotFound
	}
	prevOrder := append([]string(nil), tx.st.order...)
	tx.removeMember(memberID)
	tx.undo = append(tx.undo, func() {
		tx.st.regs[memberID] = r
		tx.st.order = prevOrder
	})
	return nil
}

func (tx *memoryTx) MarkReminded(_ context.Context, memberID string, at time.Time) (model.Registration, error) {
	r, ok := tx.st.regs[memberID]
	if !ok {
		return model.Registration{}, ErrNotFound
	}
	if r.ReminderSentAt != nil {
		return model.Registration{}, ErrAlreadyReminded
	}
	prev := *r
	sent := at
	r.ReminderSentAt = &sent
	r.ReminderCount++
	tx.undo = append(tx.undo, func() { *r = prev })
	return *r, nil
}

func (tx *memoryTx) removeMember(memberID string) {
	delete(tx.st.regs, memberID)
	for i, id := range tx.st.order {
		if id == memberID {
			tx.st.order = append(tx.st.order[:i], tx.st.order[i+1:]...)
			break
		}
	}
}

// MemoryAuditLog is an append-only in-process audit trail.
type MemoryAuditLog struct {
	tenants sync.Map // tenant id -> *auditTenant
}

type auditTenant struct {
	mu      sync.Mutex
	seq     int64
	records []model.AuditRecord
}

// NewMemoryAuditLog constructs an empty MemoryAuditLog.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// Append stores rec with the next tenant sequence number. CreatedAt is clamped
// so it never moves backwards within a tenant.
func (l *MemoryAuditLog) Append(_ context.Context, rec model.AuditRecord) (model.AuditRecord, error) {
	v, _ := l.tenants.LoadOrStore(rec.TenantID, &auditTenant{})
	t := v.(*auditTenant)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	rec.Seq = t.seq
	if n := len(t.records); n > 0 && rec.CreatedAt.Before(t.records[n-1].CreatedAt) {
		rec.CreatedAt = t.records[n-1].CreatedAt
	}
	t.records = append(t.records, rec)
	return rec, nil
}

// List returns a copy of the tenant's records in sequence order.
func (l *MemoryAuditLog) List(_ context.Context, tenantID string) ([]model.AuditRecord, error) {
	v, ok := l.tenants.Load(tenantID)
	if !ok {
		return nil, nil
	}
	t := v.(*auditTenant)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.AuditRecord, len(t.records))
	copy(out, t.records)
	return out, nil
}
