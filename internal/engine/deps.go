package engine

import (
	"context"
	"strings"

	"taskflow/internal/domain"
	"taskflow/internal/events"
)

// WouldCreateCycle reports whether linking taskID to candidate closes a loop.
// Only the direct two-task loop is detected: candidate already lists taskID
// among its own dependencies. Longer loops such as A->B->C->A pass this check.
func WouldCreateCycle(candidate domain.Task, taskID string) bool {
	return domain.HasDependency(candidate, taskID)
}

type DependencyOptions struct {
	Actor     domain.Actor
	TaskID    string
	DependsOn string
	Type      string
}

// AddDependency links TaskID to DependsOn after the self, project and cycle
// checks. Adding an identical (id, type) pair again is a no-op.
func (e Engine) AddDependency(ctx context.Context, opts DependencyOptions) (domain.Task, error) {
	dependsOn := strings.TrimSpace(opts.DependsOn)
	if dependsOn == "" {
		return domain.Task{}, domain.Invalid("Dependency task id is required")
	}
	if dependsOn == opts.TaskID {
		return domain.Task{}, domain.Invalid("A task cannot depend on itself")
	}
	depType := opts.Type
	if depType == "" {
		depType = domain.DependencyBlocks
	}
	if !validEnum(domain.DependencyTypes, depType) {
		return domain.Task{}, domain.Invalid("Invalid dependency type: " + depType)
	}
	t, err := e.Repo.GetTask(ctx, nil, opts.Actor.TenantID, opts.TaskID)
	if err != nil {
		return t, notFound(err, "Task not found")
	}
	p, err := e.Auth.RequireMember(ctx, nil, opts.Actor, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	candidate, err := e.Repo.GetTask(ctx, nil, p.TenantID, dependsOn)
	if err != nil {
		return domain.Task{}, notFound(err, "Dependency task not found")
	}
	if candidate.ProjectID != t.ProjectID {
		return domain.Task{}, domain.Invalid("Dependencies must belong to the same project")
	}
	if WouldCreateCycle(candidate, t.ID) {
		return domain.Task{}, domain.Invalid("Circular dependency detected")
	}

	d := domain.Dependency{TaskID: dependsOn, Type: depType}
	now := e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	added, err := e.Repo.AddDependency(ctx, tx, t.ID, d, now)
	if err != nil {
		return domain.Task{}, err
	}
	if !added {
		return t, nil
	}
	if _, err := e.Repo.AppendActivity(ctx, tx, domain.ActivityEntry{
		TaskID: t.ID, UserID: opts.Actor.UserID, Action: "dependency_added",
		Details:   map[string]any{"dependency_task_id": dependsOn, "type": depType},
		Timestamp: now,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.TouchProject(ctx, tx, p.TenantID, p.ID, now); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Dependencies = append(t.Dependencies, d)

	e.Cache.InvalidateTask(ctx, t.ID)
	e.emit(ctx, events.Message{
		Type: events.TaskUpdated, TenantID: t.TenantID, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID,
		ActorID: opts.Actor.UserID, Payload: events.EventPayload{"changes": []string{"dependencies"}, "dependency_task_id": dependsOn},
	})
	return t, nil
}

// RemoveDependency drops every edge from taskID to dependsOn. Removing an
// edge that does not exist succeeds and is still logged.
func (e Engine) RemoveDependency(ctx context.Context, actor domain.Actor, taskID, dependsOn string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, nil, actor.TenantID, taskID)
	if err != nil {
		return t, notFound(err, "Task not found")
	}
	p, err := e.Auth.RequireMember(ctx, nil, actor, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	removed, err := e.Repo.RemoveDependency(ctx, tx, t.ID, dependsOn)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := e.Repo.AppendActivity(ctx, tx, domain.ActivityEntry{
		TaskID: t.ID, UserID: actor.UserID, Action: "dependency_removed",
		Details:   map[string]any{"dependency_task_id": dependsOn},
		Timestamp: now,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.TouchProject(ctx, tx, p.TenantID, p.ID, now); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	kept := t.Dependencies[:0]
	for _, d := range t.Dependencies {
		if d.TaskID != dependsOn {
			kept = append(kept, d)
		}
	}
	t.Dependencies = kept

	e.Cache.InvalidateTask(ctx, t.ID)
	if removed > 0 {
		e.emit(ctx, events.Message{
			Type: events.TaskUpdated, TenantID: t.TenantID, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID,
			ActorID: actor.UserID, Payload: events.EventPayload{"changes": []string{"dependencies"}, "dependency_task_id": dependsOn},
		})
	}
	return t, nil
}

// CanStart reports whether every blocked-by dependency of the task is done.
// The answer is advisory; UpdateTask never consults it.
func (e Engine) CanStart(ctx context.Context, actor domain.Actor, taskID string) (bool, error) {
	t, err := e.GetTask(ctx, actor, taskID)
	if err != nil {
		return false, err
	}
	ids := make([]string, 0, len(t.Dependencies))
	for _, d := range t.Dependencies {
		if d.Type == domain.DependencyBlockedBy {
			ids = append(ids, d.TaskID)
		}
	}
	statuses, err := e.Repo.TaskStatuses(ctx, nil, actor.TenantID, ids)
	if err != nil {
		return false, err
	}
	return domain.CanStart(t, statuses), nil
}
