package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"
	titleConstraint = "events_tenant_title_key"
)

const eventColumns = `id, tenant_id, title, description, location, start_date, end_date,
	capacity, price, currency, status, created_at`

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanEvent(row pgx.Row, extra ...any) (model.Event, error) {
	var (
		e      model.Event
		status string
	)
	dest := []any{
		&e.ID, &e.TenantID, &e.Title, &e.Description, &e.Location, &e.StartDate, &e.EndDate,
		&e.Capacity, &e.Price, &e.Currency, &status, &e.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Event{}, err
	}
	e.Status = model.EventStatus(status)
	return e, nil
}

// CreateEvent inserts a new event. The unique index on (tenant_id, lower(title))
// enforces title uniqueness.
func (s *PostgresStore) CreateEvent(ctx context.Context, e model.Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.TenantID, e.Title, e.Description, e.Location, e.StartDate, e.EndDate,
		e.Capacity, e.Price, e.Currency, string(e.Status), e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == titleConstraint {
			return ErrDuplicateTitle
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event with its live registration count or ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, tenantID, eventID string) (model.Event, error) {
	var registered int
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+`,
		        (SELECT COUNT(*) FROM registrations r WHERE r.tenant_id = e.tenant_id AND r.event_id = e.id)
		 FROM events e WHERE tenant_id = $1 AND id = $2`,
		tenantID, eventID,
	), &registered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	e.Registered = registered
	return e, nil
}

// ListEvents returns matching events ordered by insertion sequence.
func (s *PostgresStore) ListEvents(ctx context.Context, tenantID string, filter EventFilter) ([]model.Event, error) {
	var from, before *time.Time
	if !filter.StartFrom.IsZero() {
		from = &filter.StartFrom
	}
	if !filter.StartBefore.IsZero() {
		before = &filter.StartBefore
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+eventColumns+`,
		        (SELECT COUNT(*) FROM registrations r WHERE r.tenant_id = e.tenant_id AND r.event_id = e.id)
		 FROM events e
		 WHERE tenant_id = $1
		   AND ($2 = '' OR status = $2)
		   AND ($3::timestamptz IS NULL OR start_date >= $3)
		   AND ($4::timestamptz IS NULL OR start_date < $4)
		 ORDER BY seq ASC`,
		tenantID, string(filter.Status), from, before,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var registered int
		e, err := scanEvent(rows, &registered)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Registered = registered
		events = append(events, e)
	}
	return events, rows.Err()
}

// Tenants returns every tenant that owns at least one event.
func (s *PostgresStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT tenant_id FROM events ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// WithEvent runs fn inside a transaction holding a row lock on the event.
//
// SELECT … FOR UPDATE blocks every other WithEvent on the same row until we
// COMMIT or ROLLBACK, so capacity checks and the insert that follows them
// cannot interleave with a concurrent registration. Other events, and other
// tenants, lock different rows and proceed independently.
//
// Commit hooks run inside the transaction just before COMMIT, with the
// transaction carried on their context. PostgresAuditLog.Append picks it up
// and writes under a savepoint, so audit rows are numbered while the row lock
// is held and commit or roll back with the mutation.
func (s *PostgresStore) WithEvent(ctx context.Context, tenantID, eventID string, fn func(tx EventTx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	e, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, eventID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	ptx := &postgresTx{tx: tx, event: e}
	if err = ptx.refreshCount(ctx); err != nil {
		return err
	}
	if err = fn(ptx); err != nil {
		return err
	}
	hookCtx := context.WithValue(ctx, txContextKey{}, tx)
	for _, hook := range ptx.hooks {
		hook(hookCtx)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txContextKey struct{}

type postgresTx struct {
	tx    pgx.Tx
	event model.Event
	hooks []func(context.Context)
}

func (t *postgresTx) OnCommit(hook func(ctx context.Context)) {
	t.hooks = append(t.hooks, hook)
}

func (t *postgresTx) refreshCount(ctx context.Context) error {
	n, err := t.LiveCount(ctx)
	if err != nil {
		return err
	}
	t.event.Registered = n
	return nil
}

func (t *postgresTx) Event() model.Event {
	return t.event
}

func (t *postgresTx) UpdateEvent(ctx context.Context, e model.Event) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET description = $3, location = $4, start_date = $5, end_date = $6,
		     capacity = $7, price = $8, currency = $9, status = $10
		 WHERE tenant_id = $1 AND id = $2`,
		t.event.TenantID, t.event.ID, e.Description, e.Location, e.StartDate, e.EndDate,
		e.Capacity, e.Price, e.Currency, string(e.Status),
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	registered := t.event.Registered
	e.ID, e.TenantID, e.Title, e.CreatedAt = t.event.ID, t.event.TenantID, t.event.Title, t.event.CreatedAt
	t.event = e
	t.event.Registered = registered
	return nil
}

func (t *postgresTx) LiveCount(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE tenant_id = $1 AND event_id = $2`,
		t.event.TenantID, t.event.ID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

const registrationColumns = `id, tenant_id, event_id, member_id, member_email, status,
	reminder_sent_at, reminder_count, created_at`

func scanRegistration(row pgx.Row) (model.Registration, error) {
	var (
		r      model.Registration
		status string
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.EventID, &r.MemberID, &r.MemberEmail, &status,
		&r.ReminderSentAt, &r.ReminderCount, &r.CreatedAt)
	r.Status = model.RegistrationStatus(status)
	return r, err
}

func (t *postgresTx) Registration(ctx context.Context, memberID string) (model.Registration, error) {
	r, err := scanRegistration(t.tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE tenant_id = $1 AND event_id = $2 AND member_id = $3`,
		t.event.TenantID, t.event.ID, memberID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Registration{}, ErrNotFound
		}
		return model.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return r, nil
}

func (t *postgresTx) Registrations(ctx context.Context) ([]model.Registration, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE tenant_id = $1 AND event_id = $2
		 ORDER BY seq ASC`,
		t.event.TenantID, t.event.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

func (t *postgresTx) InsertRegistration(ctx context.Context, r model.Registration) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO registrations (id, tenant_id, event_id, member_id, member_email, status, reminder_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, t.event.TenantID, t.event.ID, r.MemberID, r.MemberEmail, string(r.Status), r.ReminderCount, r.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	t.event.Registered++
	return nil
}

func (t *postgresTx) DeleteRegistration(ctx context.Context, memberID string) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM registrations WHERE tenant_id = $1 AND event_id = $2 AND member_id = $3`,
		t.event.TenantID, t.event.ID, memberID,
	)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if t.event.Registered > 0 {
		t.event.Registered--
	}
	return nil
}

func (t *postgresTx) MarkReminded(ctx context.Context, memberID string, at time.Time) (model.Registration, error) {
	r, err := scanRegistration(t.tx.QueryRow(ctx,
		`UPDATE registrations
		 SET reminder_sent_at = $4, reminder_count = reminder_count + 1
		 WHERE tenant_id = $1 AND event_id = $2 AND member_id = $3 AND reminder_sent_at IS NULL
		 RETURNING `+registrationColumns,
		t.event.TenantID, t.event.ID, memberID, at,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := t.Registration(ctx, memberID); getErr != nil {
				return model.Registration{}, getErr
			}
			return model.Registration{}, ErrAlreadyReminded
		}
		return model.Registration{}, fmt.Errorf("mark reminded: %w", err)
	}
	return r, nil
}

// PostgresAuditLog implements AuditLog on the audit_records table. The
// bigserial seq column gives a monotonic order within every tenant.
type PostgresAuditLog struct {
	db *pgxpool.Pool
}

// NewPostgresAuditLog constructs a PostgresAuditLog.
func NewPostgresAuditLog(db *pgxpool.Pool) *PostgresAuditLog {
	return &PostgresAuditLog{db: db}
}

// Append inserts rec and returns it with its assigned sequence number. Inside
// a WithEvent commit hook the insert joins the event transaction under a
// savepoint; a failed insert rolls back only the savepoint.
func (l *PostgresAuditLog) Append(ctx context.Context, rec model.AuditRecord) (model.AuditRecord, error) {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return model.AuditRecord{}, fmt.Errorf("audit savepoint: %w", err)
		}
		if rec, err = insertAudit(ctx, sp, rec); err != nil {
			_ = sp.Rollback(ctx)
			return model.AuditRecord{}, err
		}
		if err := sp.Commit(ctx); err != nil {
			return model.AuditRecord{}, fmt.Errorf("release audit savepoint: %w", err)
		}
		return rec, nil
	}
	return insertAudit(ctx, l.db, rec)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAudit(ctx context.Context, db queryRower, rec model.AuditRecord) (model.AuditRecord, error) {
	err := db.QueryRow(ctx,
		`INSERT INTO audit_records (id, tenant_id, event_id, action, actor_id, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		rec.ID, rec.TenantID, rec.EventID, string(rec.Action), rec.ActorID, rec.Meta, rec.CreatedAt,
	).Scan(&rec.Seq)
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("insert audit record: %w", err)
	}
	return rec, nil
}

// List returns the tenant's records in sequence order.
func (l *PostgresAuditLog) List(ctx context.Context, tenantID string) ([]model.AuditRecord, error) {
	rows, err := l.db.Query(ctx,
		`SELECT id, tenant_id, event_id, action, actor_id, seq, created_at, meta
		 FROM audit_records WHERE tenant_id = $1 ORDER BY seq ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			rec    model.AuditRecord
			action string
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.EventID, &action, &rec.ActorID,
			&rec.Seq, &rec.CreatedAt, &rec.Meta); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = model.AuditAction(action)
		out = append(out, rec)
	}
	return out, rows.Err()
}
