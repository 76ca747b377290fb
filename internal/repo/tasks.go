package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"taskflow/internal/domain"
)

const taskColumns = `id,tenant_id,project_id,parent_task_id,title,description,status,priority,due_date,start_date,completed_at,estimated_hours,actual_hours,ai_metadata_json,created_by,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var parentID, description, dueDate, startDate, completedAt, aiMeta sql.NullString
	var estimated sql.NullFloat64
	err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &parentID, &t.Title, &description, &t.Status, &t.Priority,
		&dueDate, &startDate, &completedAt, &estimated, &t.ActualHours, &aiMeta, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if parentID.Valid {
		t.ParentTaskID = &parentID.String
	}
	if description.Valid {
		t.Description = description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if startDate.Valid {
		t.StartDate = &startDate.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	if estimated.Valid {
		v := estimated.Float64
		t.EstimatedHours = &v
	}
	if aiMeta.Valid && aiMeta.String != "" {
		var meta domain.AIMetadata
		if err := json.Unmarshal([]byte(aiMeta.String), &meta); err == nil {
			t.AIMetadata = &meta
		}
	}
	t.Assignees = []string{}
	t.Tags = []string{}
	t.Dependencies = []domain.Dependency{}
	return t, nil
}

func marshalAIMetadata(meta *domain.AIMetadata) (any, error) {
	if meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// InsertTask stores the task row with its assignees, tags and dependencies.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	meta, err := marshalAIMetadata(t.AIMetadata)
	if err != nil {
		return err
	}
	q := r.on(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TenantID, t.ProjectID, nullableStringPtr(t.ParentTaskID), t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.DueDate), nullableStringPtr(t.StartDate), nullableStringPtr(t.CompletedAt), nullableFloatPtr(t.EstimatedHours),
		t.ActualHours, meta, t.CreatedBy, t.CreatedAt, t.UpdatedAt); err != nil {
		return duplicate(err, "task "+t.ID)
	}
	if err := r.replaceAssignees(ctx, q, t.ID, t.Assignees); err != nil {
		return err
	}
	if err := r.replaceTags(ctx, q, t.ID, t.Tags); err != nil {
		return err
	}
	for _, d := range t.Dependencies {
		if _, err := r.AddDependency(ctx, tx, t.ID, d, t.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// TaskPatch collects the task columns one update changed. Columns left out
// keep whatever is stored, so concurrent writers only race on shared fields.
type TaskPatch struct {
	cols      []string
	args      []any
	Assignees *[]string
	Tags      *[]string
}

var patchableTaskColumns = map[string]bool{
	"parent_task_id": true, "title": true, "description": true, "status": true, "priority": true,
	"due_date": true, "start_date": true, "completed_at": true, "estimated_hours": true, "actual_hours": true,
}

// Set records a new value for column. Pointer values are stored as NULL when nil.
func (p *TaskPatch) Set(column string, value any) {
	switch v := value.(type) {
	case *string:
		value = nullableStringPtr(v)
	case *float64:
		value = nullableFloatPtr(v)
	}
	p.cols = append(p.cols, column)
	p.args = append(p.args, value)
}

func (p TaskPatch) Empty() bool {
	return len(p.cols) == 0 && p.Assignees == nil && p.Tags == nil
}

// PatchTask writes only the columns in patch, plus updated_at, and replaces
// assignees or tags only when the patch carries them.
func (r Repo) PatchTask(ctx context.Context, tx *sql.Tx, tenantID, id string, patch TaskPatch, updatedAt string) error {
	sets := make([]string, 0, len(patch.cols)+1)
	for _, col := range patch.cols {
		if !patchableTaskColumns[col] {
			return fmt.Errorf("task column %q cannot be patched", col)
		}
		sets = append(sets, col+"=?")
	}
	sets = append(sets, "updated_at=?")
	args := append(append([]any{}, patch.args...), updatedAt, tenantID, id)
	q := r.on(tx)
	res, err := q.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE tenant_id=? AND id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if patch.Assignees != nil {
		if err := r.replaceAssignees(ctx, q, id, *patch.Assignees); err != nil {
			return err
		}
	}
	if patch.Tags != nil {
		return r.replaceTags(ctx, q, id, *patch.Tags)
	}
	return nil
}

func (r Repo) UpdateAIMetadata(ctx context.Context, tx *sql.Tx, tenantID, taskID string, meta domain.AIMetadata, now string) error {
	raw, err := marshalAIMetadata(&meta)
	if err != nil {
		return err
	}
	_, err = r.on(tx).ExecContext(ctx, `UPDATE tasks SET ai_metadata_json=?, updated_at=? WHERE tenant_id=? AND id=?`, raw, now, tenantID, taskID)
	return err
}

func (r Repo) replaceAssignees(ctx context.Context, q dbtx, taskID string, assignees []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for i, userID := range dedupe(assignees) {
		if _, err := q.ExecContext(ctx, `INSERT INTO task_assignees(task_id,user_id,position) VALUES (?,?,?)`, taskID, userID, i); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) replaceTags(ctx context.Context, q dbtx, taskID string, tags []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for i, tag := range dedupe(tags) {
		if _, err := q.ExecContext(ctx, `INSERT INTO task_tags(task_id,tag,position) VALUES (?,?,?)`, taskID, tag, i); err != nil {
			return err
		}
	}
	return nil
}

// GetTask loads a task inside a tenant scope.
func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.Task, error) {
	q := r.on(tx)
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id=? AND id=?`, tenantID, id))
	if err != nil {
		return t, err
	}
	tasks := []domain.Task{t}
	if err := r.hydrate(ctx, q, tasks); err != nil {
		return t, err
	}
	return tasks[0], nil
}

type TaskFilters struct {
	TenantID        string
	ProjectID       string
	Status          string
	AssigneeID      string
	ParentTaskID    string
	Search          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "id IN (SELECT task_id FROM task_assignees WHERE user_id=?)")
		args = append(args, f.AssigneeID)
	}
	if f.ParentTaskID != "" {
		clauses = append(clauses, "parent_task_id=?")
		args = append(args, f.ParentTaskID)
	}
	if f.Search != "" {
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(COALESCE(description,'')) LIKE ?)")
		needle := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, needle, needle)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, r.DB, res); err != nil {
		return nil, err
	}
	return res, nil
}

// hydrate fills assignees, tags and dependencies for tasks in three queries.
func (r Repo) hydrate(ctx context.Context, q dbtx, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	index := make(map[string]int, len(tasks))
	args := make([]any, 0, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
		args = append(args, t.ID)
	}
	in := placeholders(len(tasks))

	rows, err := q.QueryContext(ctx, `SELECT task_id,user_id FROM task_assignees WHERE task_id IN (`+in+`) ORDER BY task_id, position`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var taskID, userID string
		if err := rows.Scan(&taskID, &userID); err != nil {
			rows.Close()
			return err
		}
		i := index[taskID]
		tasks[i].Assignees = append(tasks[i].Assignees, userID)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT task_id,tag FROM task_tags WHERE task_id IN (`+in+`) ORDER BY task_id, position`, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var taskID, tag string
		if err := rows.Scan(&taskID, &tag); err != nil {
			rows.Close()
			return err
		}
		i := index[taskID]
		tasks[i].Tags = append(tasks[i].Tags, tag)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `SELECT task_id,depends_on_task_id,type FROM task_dependencies WHERE task_id IN (`+in+`) ORDER BY seq`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var taskID string
		var d domain.Dependency
		if err := rows.Scan(&taskID, &d.TaskID, &d.Type); err != nil {
			return err
		}
		i := index[taskID]
		tasks[i].Dependencies = append(tasks[i].Dependencies, d)
	}
	return rows.Err()
}

// AddDependency appends an edge unless the identical (target, type) pair is
// already present. It reports whether a row was inserted.
func (r Repo) AddDependency(ctx context.Context, tx *sql.Tx, taskID string, d domain.Dependency, now string) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `INSERT OR IGNORE INTO task_dependencies(task_id,depends_on_task_id,type,created_at) VALUES (?,?,?,?)`,
		taskID, d.TaskID, d.Type, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveDependency drops every edge from taskID to dependsOn regardless of type.
func (r Repo) RemoveDependency(ctx context.Context, tx *sql.Tx, taskID, dependsOn string) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id=? AND depends_on_task_id=?`, taskID, dependsOn)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneDependencyTarget removes target from every other task's dependency list.
func (r Repo) PruneDependencyTarget(ctx context.Context, tx *sql.Tx, target string) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM task_dependencies WHERE depends_on_task_id=?`, target)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, tenantID, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM tasks WHERE tenant_id=? AND id=?`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountChildren(ctx context.Context, tx *sql.Tx, tenantID, taskID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE tenant_id=? AND parent_task_id=?`, tenantID, taskID).Scan(&n)
	return n, err
}

// TaskStatuses maps each existing id to its status.
func (r Repo) TaskStatuses(ctx context.Context, tx *sql.Tx, tenantID string, ids []string) (map[string]string, error) {
	out := map[string]string{}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return out, nil
	}
	args := []any{tenantID}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id,status FROM tasks WHERE tenant_id=? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = status
	}
	return out, rows.Err()
}

func (r Repo) CountTasks(ctx context.Context, tx *sql.Tx, tenantID, projectID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE tenant_id=? AND project_id=?`, tenantID, projectID).Scan(&n)
	return n, err
}

func (r Repo) CountTasksWithStatus(ctx context.Context, tx *sql.Tx, tenantID, projectID, status string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE tenant_id=? AND project_id=? AND status=?`,
		tenantID, projectID, status).Scan(&n)
	return n, err
}

// CountOverdue counts tasks that are not done and whose due date is before now.
// Dates are stored as normalized UTC RFC3339 strings, so string order is time order.
func (r Repo) CountOverdue(ctx context.Context, tx *sql.Tx, tenantID, projectID, now string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE tenant_id=? AND project_id=? AND status<>'done'
AND due_date IS NOT NULL AND due_date < ?`, tenantID, projectID, now).Scan(&n)
	return n, err
}

// DependentTaskIDs lists tasks that have target among their dependencies.
func (r Repo) DependentTaskIDs(ctx context.Context, tx *sql.Tx, target string) ([]string, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT DISTINCT task_id FROM task_dependencies WHERE depends_on_task_id=?`, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
