// Package scheduler drives periodic reminder scans across all tenants.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
	"golang.org/x/sync/errgroup"
)

// SystemActorID identifies scans started by the in-process runner in the
// audit trail.
const SystemActorID = "system:reminder-runner"

// TenantLister enumerates tenants that own events.
type TenantLister interface {
	Tenants(ctx context.Context) ([]string, error)
}

// ReminderService is the subset of the engine the runner drives.
type ReminderService interface {
	RunReminders(ctx context.Context, actor model.Actor, now time.Time) (int, error)
}

// Runner invokes RunReminders for every tenant on a fixed interval. Tenants
// are scanned concurrently; each scan is idempotent, so overlapping with an
// operator-triggered run is harmless.
type Runner struct {
	tenants     TenantLister
	svc         ReminderService
	interval    time.Duration
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// NewRunner constructs a Runner that scans at most eight tenants at a time.
func NewRunner(tenants TenantLister, svc ReminderService, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tenants:     tenants,
		svc:         svc,
		interval:    interval,
		concurrency: 8,
		now:         time.Now,
		logger:      logger.With("component", "reminder-runner"),
	}
}

// Start runs scans until ctx is cancelled. The first scan happens immediately.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "reminder run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce scans every tenant once and returns the per-tenant results. A
// failing tenant is logged and does not stop the others.
func (r *Runner) RunOnce(ctx context.Context) ([]model.ReminderRun, error) {
	ids, err := r.tenants.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	results := make([]model.ReminderRun, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, tenantID := range ids {
		i, tenantID := i, tenantID
		g.Go(func() error {
			actor := model.Actor{TenantID: tenantID, ActorID: SystemActorID, Roles: []string{model.RoleAdmin}}
			sent, err := r.svc.RunReminders(gctx, actor, now)
			results[i] = model.ReminderRun{TenantID: tenantID, Sent: sent}
			if err != nil {
				r.logger.WarnContext(gctx, "tenant reminder scan failed", "tenant_id", tenantID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
