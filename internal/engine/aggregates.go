package engine

import (
	"context"

	"go.uber.org/zap"

	"taskflow/internal/domain"
)

// RecomputeCounters rebuilds a project's task counters from scratch with three
// independent counts and writes them, plus lastActivityAt, in one update.
//
// The recompute is not atomic with the mutation that triggered it: it runs
// after that mutation has committed, so a failure in between leaves stale
// counters until the next recompute or overdue sweep.
func (e Engine) RecomputeCounters(ctx context.Context, projectID, tenantID string) error {
	now := e.timestamp()
	total, err := e.Repo.CountTasks(ctx, nil, tenantID, projectID)
	if err != nil {
		return err
	}
	completed, err := e.Repo.CountTasksWithStatus(ctx, nil, tenantID, projectID, domain.StatusDone)
	if err != nil {
		return err
	}
	overdue, err := e.Repo.CountOverdue(ctx, nil, tenantID, projectID, now)
	if err != nil {
		return err
	}
	meta := domain.ProjectMetadata{
		TotalTasks:     total,
		CompletedTasks: completed,
		OverdueTasks:   overdue,
		LastActivityAt: &now,
	}
	if err := e.Repo.SetCounters(ctx, nil, tenantID, projectID, meta, now); err != nil {
		return notFound(err, "Project not found")
	}
	e.Cache.InvalidateProject(ctx, projectID)
	return nil
}

// recompute runs RecomputeCounters and swallows failures.
func (e Engine) recompute(ctx context.Context, projectID, tenantID string) {
	if err := e.RecomputeCounters(context.WithoutCancel(ctx), projectID, tenantID); err != nil {
		e.log().Error("recompute project counters failed",
			zap.String("project_id", projectID),
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

// SweepOverdue refreshes the overdue counter of every project. Overdue counts
// drift with the clock even when no task changes, so this runs on a schedule.
// It returns how many projects were updated.
func (e Engine) SweepOverdue(ctx context.Context) (int, error) {
	refs, err := e.Repo.ListProjectRefs(ctx)
	if err != nil {
		return 0, err
	}
	now := e.timestamp()
	updated := 0
	for _, ref := range refs {
		tenantID, projectID := ref[0], ref[1]
		overdue, err := e.Repo.CountOverdue(ctx, nil, tenantID, projectID, now)
		if err != nil {
			e.log().Warn("overdue sweep: count failed", zap.String("project_id", projectID), zap.Error(err))
			continue
		}
		if err := e.Repo.SetOverdueCount(ctx, nil, tenantID, projectID, overdue, now); err != nil {
			e.log().Warn("overdue sweep: update failed", zap.String("project_id", projectID), zap.Error(err))
			continue
		}
		e.Cache.InvalidateProject(ctx, projectID)
		updated++
	}
	return updated, nil
}
