package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"taskflow/internal/domain"
	"taskflow/internal/events"
	"taskflow/internal/repo"
)

const (
	maxTaskTitle       = 200
	maxTaskDescription = 2000
	defaultTaskPage    = 50
	maxTaskPage        = 200
)

type TaskCreateOptions struct {
	Actor          domain.Actor
	ID             string
	ProjectID      string
	ParentTaskID   string
	Title          string
	Description    string
	Status         string
	Priority       string
	DueDate        *string
	StartDate      *string
	EstimatedHours *float64
	Assignees      []string
	Tags           []string
	Dependencies   []domain.Dependency
}

func validateTaskFields(t domain.Task) error {
	if t.Title == "" {
		return domain.Invalid("Task title is required")
	}
	if len(t.Title) > maxTaskTitle {
		return domain.Invalid("Task title cannot exceed 200 characters")
	}
	if len(t.Description) > maxTaskDescription {
		return domain.Invalid("Task description cannot exceed 2000 characters")
	}
	if !validEnum(domain.TaskStatuses, t.Status) {
		return domain.Invalid("Invalid task status: " + t.Status)
	}
	if !validEnum(domain.Priorities, t.Priority) {
		return domain.Invalid("Invalid priority: " + t.Priority)
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return domain.Invalid("Estimated hours cannot be negative")
	}
	if t.ActualHours < 0 {
		return domain.Invalid("Actual hours cannot be negative")
	}
	return nil
}

// applyCompletion keeps completedAt set exactly while the task is done.
func applyCompletion(t *domain.Task, now string) {
	if t.Status != domain.StatusDone {
		t.CompletedAt = nil
		return
	}
	if t.CompletedAt == nil {
		t.CompletedAt = strPtr(now)
	}
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// validateAssignees requires every id to be an active tenant user and a project member.
func (e Engine) validateAssignees(ctx context.Context, p domain.Project, assignees []string) error {
	if len(assignees) == 0 {
		return nil
	}
	n, err := e.Repo.CountActiveUsers(ctx, nil, p.TenantID, assignees)
	if err != nil {
		return err
	}
	if n != len(assignees) {
		return domain.Invalid("Some assigness are not valid users")
	}
	for _, id := range assignees {
		if !domain.IsMember(p, id) {
			return domain.Invalid("All assignees must be project members")
		}
	}
	return nil
}

// loadParent checks that parentID is a task of the same project and tenant.
func (e Engine) loadParent(ctx context.Context, tenantID, projectID, parentID string) (domain.Task, error) {
	parent, err := e.Repo.GetTask(ctx, nil, tenantID, parentID)
	if err != nil {
		return parent, notFound(err, "Parent task not found")
	}
	if parent.ProjectID != projectID {
		return parent, domain.Invalid("Parent task must belong to the same project")
	}
	return parent, nil
}

// ensureNoCycle climbs the parent chain from parentID and fails if childID is an ancestor.
func (e Engine) ensureNoCycle(ctx context.Context, tenantID, parentID, childID string) error {
	cur := parentID
	for cur != "" {
		if cur == childID {
			return domain.Invalid("Task hierarchy cycle detected")
		}
		t, err := e.Repo.GetTask(ctx, nil, tenantID, cur)
		if err != nil {
			return notFound(err, "Parent task not found")
		}
		cur = ptrValue(t.ParentTaskID)
	}
	return nil
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.ProjectID) == "" {
		return domain.Task{}, domain.Invalid("Project id is required")
	}
	now := e.timestamp()
	due, err := normalizeDate("due date", opts.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	start, err := normalizeDate("start date", opts.StartDate)
	if err != nil {
		return domain.Task{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Task{
		ID:             id,
		TenantID:       opts.Actor.TenantID,
		ProjectID:      opts.ProjectID,
		Title:          strings.TrimSpace(opts.Title),
		Description:    opts.Description,
		Status:         opts.Status,
		Priority:       opts.Priority,
		DueDate:        due,
		StartDate:      start,
		EstimatedHours: opts.EstimatedHours,
		Assignees:      cleanIDs(opts.Assignees),
		Tags:           domain.NormalizeTags(opts.Tags),
		Dependencies:   []domain.Dependency{},
		CreatedBy:      opts.Actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if err := validateTaskFields(t); err != nil {
		return domain.Task{}, err
	}
	applyCompletion(&t, now)

	p, err := e.Auth.RequireMember(ctx, nil, opts.Actor, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	if parentID := strings.TrimSpace(opts.ParentTaskID); parentID != "" {
		if _, err := e.loadParent(ctx, p.TenantID, p.ID, parentID); err != nil {
			return domain.Task{}, err
		}
		t.ParentTaskID = &parentID
	}
	if err := e.validateAssignees(ctx, p, t.Assignees); err != nil {
		return domain.Task{}, err
	}
	for _, d := range opts.Dependencies {
		d.TaskID = strings.TrimSpace(d.TaskID)
		if d.TaskID == "" {
			return domain.Task{}, domain.Invalid("Dependency task id is required")
		}
		if d.TaskID == t.ID {
			return domain.Task{}, domain.Invalid("A task cannot depend on itself")
		}
		if d.Type == "" {
			d.Type = domain.DependencyBlocks
		}
		if !validEnum(domain.DependencyTypes, d.Type) {
			return domain.Task{}, domain.Invalid("Invalid dependency type: " + d.Type)
		}
		dep, err := e.Repo.GetTask(ctx, nil, p.TenantID, d.TaskID)
		if err != nil {
			return domain.Task{}, notFound(err, "Dependency task not found")
		}
		if dep.ProjectID != p.ID {
			return domain.Task{}, domain.Invalid("Dependencies must belong to the same project")
		}
		if !containsDependency(t.Dependencies, d) {
			t.Dependencies = append(t.Dependencies, d)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Task{}, domain.ConflictError("Task already exists")
		}
		return domain.Task{}, err
	}
	if _, err := e.Repo.AppendActivity(ctx, tx, domain.ActivityEntry{
		TaskID: t.ID, UserID: opts.Actor.UserID, Action: "created", Timestamp: now,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.Repo.IncrementTotalTasks(ctx, tx, p.TenantID, p.ID, now); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	if t.Status == domain.StatusDone || t.DueDate != nil {
		e.recompute(ctx, p.ID, p.TenantID)
	} else {
		e.Cache.InvalidateProject(ctx, p.ID)
	}
	e.emit(ctx, events.Message{
		Type: events.TaskCreated, TenantID: t.TenantID, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID,
		ActorID: opts.Actor.UserID, Payload: events.EventPayload{"title": t.Title, "status": t.Status},
	})
	if len(t.Assignees) > 0 {
		e.announceAssignment(ctx, opts.Actor, t, t.Assignees)
	}
	return t, nil
}

func containsDependency(deps []domain.Dependency, d domain.Dependency) bool {
	for _, existing := range deps {
		if existing == d {
			return true
		}
	}
	return false
}

func (e Engine) announceAssignment(ctx context.Context, actor domain.Actor, t domain.Task, userIDs []string) {
	e.emit(ctx, events.Message{
		Type: events.TaskAssigned, TenantID: t.TenantID, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID,
		ActorID: actor.UserID, UserIDs: userIDs, Payload: events.EventPayload{"assignees": userIDs, "title": t.Title},
	})
	if e.Notify != nil {
		e.Notify.TaskAssigned(ctx, actor, t, userIDs)
	}
}

// GetTask returns a task from a project the actor belongs to.
func (e Engine) GetTask(ctx context.Context, actor domain.Actor, id string) (domain.Task, error) {
	t, ok := e.Cache.Task(ctx, id)
	if !ok || t.TenantID != actor.TenantID {
		var err error
		t, err = e.Repo.GetTask(ctx, nil, actor.TenantID, id)
		if err != nil {
			return t, notFound(err, "Task not found")
		}
		ok = false
	}
	if _, err := e.Auth.RequireMember(ctx, nil, actor, t.ProjectID); err != nil {
		return domain.Task{}, err
	}
	if !ok {
		e.Cache.PutTask(ctx, t)
	}
	return t, nil
}

type TaskListOptions struct {
	ProjectID    string
	Status       string
	AssigneeID   string
	ParentTaskID string
	Search       string
	Limit        int
	Cursor       string
}

type TaskPage struct {
	Tasks      []domain.Task `json:"tasks"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func encodeCursor(t domain.Task) string {
	return base64.RawURLEncoding.EncodeToString([]byte(t.CreatedAt + "|" + t.ID))
}

func decodeCursor(c string) (string, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return "", "", domain.Invalid("Invalid cursor")
	}
	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok || createdAt == "" || id == "" {
		return "", "", domain.Invalid("Invalid cursor")
	}
	return createdAt, id, nil
}

// ListTasks pages a project's tasks newest first.
func (e Engine) ListTasks(ctx context.Context, actor domain.Actor, opts TaskListOptions) (TaskPage, error) {
	if _, err := e.Auth.RequireMember(ctx, nil, actor, opts.ProjectID); err != nil {
		return TaskPage{}, err
	}
	if opts.Status != "" && !validEnum(domain.TaskStatuses, opts.Status) {
		return TaskPage{}, domain.Invalid("Invalid task status: " + opts.Status)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultTaskPage
	}
	if limit > maxTaskPage {
		limit = maxTaskPage
	}
	f := repo.TaskFilters{
		TenantID:     actor.TenantID,
		ProjectID:    opts.ProjectID,
		Status:       opts.Status,
		AssigneeID:   opts.AssigneeID,
		ParentTaskID: opts.ParentTaskID,
		Search:       strings.TrimSpace(opts.Search),
		Limit:        limit + 1,
	}
	if opts.Cursor != "" {
		createdAt, id, err := decodeCursor(opts.Cursor)
		if err != nil {
			return TaskPage{}, err
		}
		f.CursorCreatedAt, f.CursorID = createdAt, id
	}
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return TaskPage{}, err
	}
	page := TaskPage{Tasks: tasks}
	if len(tasks) > limit {
		page.Tasks = tasks[:limit]
		page.NextCursor = encodeCursor(page.Tasks[limit-1])
	}
	if page.Tasks == nil {
		page.Tasks = []domain.Task{}
	}
	return page, nil
}

// ListSubtasks returns the direct children of a task.
func (e Engine) ListSubtasks(ctx context.Context, actor domain.Actor, taskID string) ([]domain.Task, error) {
	t, err := e.GetTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{TenantID: actor.TenantID, ProjectID: t.ProjectID, ParentTaskID: t.ID})
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

type TaskUpdateOptions struct {
	Actor          domain.Actor
	ID             string
	Title          *string
	Description    *string
	Status         *string
	Priority       *string
	DueDate        *string
	StartDate      *string
	EstimatedHours *float64
	ActualHours    *float64
	Assignees      *[]string
	Tags           *[]string
	ParentTaskID   *string
}

type fieldDiff map[string]any

func (d fieldDiff) set(field string, from, to any) {
	d[field] = map[string]any{"from": from, "to": to}
}

func (d fieldDiff) keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func datePtrValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtrValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func addedIDs(before, after []string) []string {
	var out []string
	for _, id := range after {
		if !domain.Contains(before, id) {
			out = append(out, id)
		}
	}
	return out
}

// UpdateTask applies a partial update. Status transitions are permissive: any
// status may follow any other, and unfinished blocked-by dependencies do not
// prevent completion. Every effective change lands in one "updated" activity entry.
// Only the changed columns are written, so a concurrent update of other fields
// survives.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, nil, opts.Actor.TenantID, opts.ID)
	if err != nil {
		return t, notFound(err, "Task not found")
	}
	p, err := e.Auth.RequireMember(ctx, nil, opts.Actor, t.ProjectID)
	if err != nil {
		return t, err
	}
	original := t
	now := e.timestamp()
	diff := fieldDiff{}
	var patch repo.TaskPatch

	if opts.Title != nil {
		if title := strings.TrimSpace(*opts.Title); title != t.Title {
			diff.set("title", t.Title, title)
			t.Title = title
			patch.Set("title", title)
		}
	}
	if opts.Description != nil && *opts.Description != t.Description {
		diff.set("description", t.Description, *opts.Description)
		t.Description = *opts.Description
		patch.Set("description", t.Description)
	}
	if opts.Status != nil && *opts.Status != t.Status {
		diff.set("status", t.Status, *opts.Status)
		t.Status = *opts.Status
		applyCompletion(&t, now)
		patch.Set("status", t.Status)
		patch.Set("completed_at", t.CompletedAt)
	}
	if opts.Priority != nil && *opts.Priority != t.Priority {
		diff.set("priority", t.Priority, *opts.Priority)
		t.Priority = *opts.Priority
		patch.Set("priority", t.Priority)
	}
	if opts.DueDate != nil {
		due, err := normalizeDate("due date", opts.DueDate)
		if err != nil {
			return original, err
		}
		if ptrValue(due) != ptrValue(t.DueDate) {
			diff.set("due_date", datePtrValue(t.DueDate), datePtrValue(due))
			t.DueDate = due
			patch.Set("due_date", due)
		}
	}
	if opts.StartDate != nil {
		start, err := normalizeDate("start date", opts.StartDate)
		if err != nil {
			return original, err
		}
		if ptrValue(start) != ptrValue(t.StartDate) {
			diff.set("start_date", datePtrValue(t.StartDate), datePtrValue(start))
			t.StartDate = start
			patch.Set("start_date", start)
		}
	}
	if opts.EstimatedHours != nil && (t.EstimatedHours == nil || *t.EstimatedHours != *opts.EstimatedHours) {
		v := *opts.EstimatedHours
		diff.set("estimated_hours", floatPtrValue(t.EstimatedHours), v)
		t.EstimatedHours = &v
		patch.Set("estimated_hours", v)
	}
	if opts.ActualHours != nil && *opts.ActualHours != t.ActualHours {
		diff.set("actual_hours", t.ActualHours, *opts.ActualHours)
		t.ActualHours = *opts.ActualHours
		patch.Set("actual_hours", t.ActualHours)
	}
	if err := validateTaskFields(t); err != nil {
		return original, err
	}

	var newlyAssigned []string
	if opts.Assignees != nil {
		next := cleanIDs(*opts.Assignees)
		if !sameStrings(next, t.Assignees) {
			if err := e.validateAssignees(ctx, p, next); err != nil {
				return original, err
			}
			newlyAssigned = addedIDs(t.Assignees, next)
			diff.set("assignees", t.Assignees, next)
			t.Assignees = next
			patch.Assignees = &next
		}
	}
	if opts.Tags != nil {
		next := domain.NormalizeTags(*opts.Tags)
		if !sameStrings(next, t.Tags) {
			diff.set("tags", t.Tags, next)
			t.Tags = next
			patch.Tags = &next
		}
	}
	if opts.ParentTaskID != nil {
		next := strings.TrimSpace(*opts.ParentTaskID)
		if next != ptrValue(t.ParentTaskID) {
			if next != "" {
				if next == t.ID {
					return original, domain.Invalid("A task cannot be its own parent")
				}
				if _, err := e.loadParent(ctx, p.TenantID, p.ID, next); err != nil {
					return original, err
				}
				if err := e.ensureNoCycle(ctx, p.TenantID, next, t.ID); err != nil {
					return original, err
				}
			}
			diff.set("parent_task_id", datePtrValue(t.ParentTaskID), next)
			if next == "" {
				t.ParentTaskID = nil
			} else {
				t.ParentTaskID = &next
			}
			patch.Set("parent_task_id", t.ParentTaskID)
		}
	}
	if len(diff) == 0 || patch.Empty() {
		return t, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return original, err
	}
	defer tx.Rollback()

	if err := e.Repo.PatchTask(ctx, tx, p.TenantID, t.ID, patch, now); err != nil {
		return original, notFound(err, "Task not found")
	}
	if _, err := e.Repo.AppendActivity(ctx, tx, domain.ActivityEntry{
		TaskID: t.ID, UserID: opts.Actor.UserID, Action: "updated", Details: diff, Timestamp: now,
	}); err != nil {
		return original, err
	}
	if err := e.Repo.TouchProject(ctx, tx, p.TenantID, p.ID, now); err != nil {
		return original, err
	}
	// Return the row as committed, including fields other writers changed.
	committed, err := e.Repo.GetTask(ctx, tx, p.TenantID, t.ID)
	if err != nil {
		return original, notFound(err, "Task not found")
	}
	if err := tx.Commit(); err != nil {
		return original, err
	}
	t = committed

	e.Cache.InvalidateTask(ctx, t.ID)
	_, statusChanged := diff["status"]
	_, dueChanged := diff["due_date"]
	if statusChanged || dueChanged {
		e.recompute(ctx, p.ID, p.TenantID)
	} else {
		e.Cache.InvalidateProject(ctx, p.ID)
	}
	e.emit(ctx, events.Message{
		Type: events.TaskUpdated, TenantID: t.TenantID, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID,
		ActorID: opts.Actor.UserID, Payload: events.EventPayload{"changes": diff.keys(), "status": t.Status},
	})
	if len(newlyAssigned) > 0 {
		e.announceAssignment(ctx, opts.Actor, t, newlyAssigned)
	}
	if statusChanged && t.Status == domain.StatusDone && e.Notify != nil {
		e.Notify.TaskCompleted(ctx, opts.Actor, t)
	}
	return t, nil
}

// SetTaskStatus is UpdateTask restricted to the status field.
func (e Engine) SetTaskStatus(ctx context.Context, actor domain.Actor, id, status string) (domain.Task, error) {
	return e.UpdateTask(ctx, TaskUpdateOptions{Actor: actor, ID: id, Status: &status})
}

// DeleteTask removes a task that has no subtasks. Manager only. The id is
// pruned from other tasks' dependencies in the same transaction, and the
// project counters are recomputed afterwards.
func (e Engine) DeleteTask(ctx context.Context, actor domain.Actor, id string) error {
	t, err := e.Repo.GetTask(ctx, nil, actor.TenantID, id)
	if err != nil {
		return notFound(err, "Task not found")
	}
	p, err := e.Auth.RequireManager(ctx, nil, actor, t.ProjectID)
	if err != nil {
		return err
	}
	children, err := e.Repo.CountChildren(ctx, nil, p.TenantID, t.ID)
	if err != nil {
		return err
	}
	if children > 0 {
		return domain.Invalid("Cannot delete task with subtasks").WithDetails(map[string]any{"subtasks": children})
	}
	dependents, err := e.Repo.DependentTaskIDs(ctx, nil, t.ID)
	if err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := e.Repo.PruneDependencyTarget(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, p.TenantID, t.ID); err != nil {
		return notFound(err, "Task not found")
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.Cache.InvalidateTask(ctx, append(dependents, t.ID)...)
	e.recompute(ctx, p.ID, p.TenantID)
	e.emit(ctx, events.Message{
		Type: events.TaskDeleted, TenantID: t.TenantID, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID,
		ActorID: actor.UserID, Payload: events.EventPayload{"title": t.Title},
	})
	return nil
}

// AddComment appends a comment and a matching activity entry.
func (e Engine) AddComment(ctx context.Context, actor domain.Actor, taskID, text string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, domain.Invalid("Comment text is required")
	}
	t, err := e.Repo.GetTask(ctx, nil, actor.TenantID, taskID)
	if err != nil {
		return domain.Comment{}, notFound(err, "Task not found")
	}
	p, err := e.Auth.RequireMember(ctx, nil, actor, t.ProjectID)
	if err != nil {
		return domain.Comment{}, err
	}
	now := e.timestamp()
	c := domain.Comment{ID: uuid.NewString(), TaskID: t.ID, UserID: actor.UserID, Text: text, CreatedAt: now}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Comment{}, err
	}
	defer tx.Rollback()

	seq, err := e.Repo.InsertComment(ctx, tx, c)
	if err != nil {
		return domain.Comment{}, err
	}
	c.Seq = seq
	if _, err := e.Repo.AppendActivity(ctx, tx, domain.ActivityEntry{
		TaskID: t.ID, UserID: actor.UserID, Action: "comment_added", Details: map[string]any{"comment_id": c.ID}, Timestamp: now,
	}); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Repo.TouchProject(ctx, tx, p.TenantID, p.ID, now); err != nil {
		return domain.Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Comment{}, err
	}

	e.Cache.InvalidateProject(ctx, p.ID)
	e.emit(ctx, events.Message{
		Type: events.CommentAdded, TenantID: t.TenantID, ProjectID: t.ProjectID, EntityKind: "task", EntityID: t.ID,
		ActorID: actor.UserID, Payload: events.EventPayload{"comment_id": c.ID, "text": c.Text},
	})
	return c, nil
}

// ListActivity pages a task's audit trail in append order.
func (e Engine) ListActivity(ctx context.Context, actor domain.Actor, taskID string, after int64, limit int) ([]domain.ActivityEntry, error) {
	t, err := e.GetTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListActivity(ctx, t.ID, after, limit)
}

func (e Engine) ListComments(ctx context.Context, actor domain.Actor, taskID string, after int64, limit int) ([]domain.Comment, error) {
	t, err := e.GetTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, t.ID, after, limit)
}

// ListEvents returns the most recent events of a project.
func (e Engine) ListEvents(ctx context.Context, actor domain.Actor, projectID string, limit int) ([]domain.Event, error) {
	if _, err := e.Auth.RequireMember(ctx, nil, actor, projectID); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, actor.TenantID, projectID, limit)
}
