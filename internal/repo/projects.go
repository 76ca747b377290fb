package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskflow/internal/domain"
)

const projectColumns = `id,tenant_id,name,description,status,priority,start_date,end_date,owner_id,is_private,allowed_member_invite,total_tasks,completed_tasks,overdue_tasks,last_activity_at,created_at,updated_at`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	var desc, start, end, lastActivity sql.NullString
	var private, invite int
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &desc, &p.Status, &p.Priority, &start, &end, &p.OwnerID, &private, &invite,
		&p.Metadata.TotalTasks, &p.Metadata.CompletedTasks, &p.Metadata.OverdueTasks, &lastActivity, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if start.Valid {
		p.StartDate = &start.String
	}
	if end.Valid {
		p.EndDate = &end.String
	}
	if lastActivity.Valid {
		p.Metadata.LastActivityAt = &lastActivity.String
	}
	p.Settings.IsPrivate = private == 1
	p.Settings.AllowedMemberInvite = invite == 1
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TenantID, p.Name, nullable(p.Description), p.Status, p.Priority, nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate),
		p.OwnerID, boolToInt(p.Settings.IsPrivate), boolToInt(p.Settings.AllowedMemberInvite),
		p.Metadata.TotalTasks, p.Metadata.CompletedTasks, p.Metadata.OverdueTasks, nullableStringPtr(p.Metadata.LastActivityAt),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return duplicate(err, "project "+p.ID)
	}
	for _, m := range p.Members {
		if err := r.InsertMember(ctx, tx, p.ID, m); err != nil {
			return err
		}
	}
	return nil
}

// GetProject loads a project and its members inside a tenant scope.
func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.Project, error) {
	p, err := scanProject(r.on(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE tenant_id=? AND id=?`, tenantID, id))
	if err != nil {
		return p, err
	}
	members, err := r.ListMembers(ctx, tx, p.ID)
	if err != nil {
		return p, err
	}
	p.Members = members
	return p, nil
}

type ProjectFilters struct {
	TenantID string
	// VisibleTo limits results to projects the user owns or belongs to.
	VisibleTo string
	Status    string
	Priority  string
	Search    string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"tenant_id=?"}
	args := []any{f.TenantID}
	if f.VisibleTo != "" {
		clauses = append(clauses, "(owner_id=? OR id IN (SELECT project_id FROM project_members WHERE user_id=?))")
		args = append(args, f.VisibleTo, f.VisibleTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		clauses = append(clauses, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		members, err := r.ListMembers(ctx, nil, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Members = members
	}
	return res, nil
}

// ListProjectRefs returns (tenant, project) pairs for every project.
func (r Repo) ListProjectRefs(ctx context.Context) ([][2]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT tenant_id,id FROM projects ORDER BY tenant_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res [][2]string
	for rows.Next() {
		var ref [2]string
		if err := rows.Scan(&ref[0], &ref[1]); err != nil {
			return nil, err
		}
		res = append(res, ref)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET name=?, description=?, status=?, priority=?, start_date=?, end_date=?,
is_private=?, allowed_member_invite=?, updated_at=? WHERE tenant_id=? AND id=?`,
		p.Name, nullable(p.Description), p.Status, p.Priority, nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate),
		boolToInt(p.Settings.IsPrivate), boolToInt(p.Settings.AllowedMemberInvite), p.UpdatedAt, p.TenantID, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, tenantID, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM projects WHERE tenant_id=? AND id=?`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementTotalTasks applies the creation-time counter bump.
func (r Repo) IncrementTotalTasks(ctx context.Context, tx *sql.Tx, tenantID, projectID, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET total_tasks=total_tasks+1, last_activity_at=? WHERE tenant_id=? AND id=?`,
		now, tenantID, projectID)
	return err
}

// TouchProject records activity without changing counters.
func (r Repo) TouchProject(ctx context.Context, tx *sql.Tx, tenantID, projectID, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET last_activity_at=? WHERE tenant_id=? AND id=?`, now, tenantID, projectID)
	return err
}

// SetCounters writes the recomputed aggregate counters in one statement.
func (r Repo) SetCounters(ctx context.Context, tx *sql.Tx, tenantID, projectID string, m domain.ProjectMetadata, now string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET total_tasks=?, completed_tasks=?, overdue_tasks=?, last_activity_at=?, counters_at=?
WHERE tenant_id=? AND id=?`, m.TotalTasks, m.CompletedTasks, m.OverdueTasks, nullableStringPtr(m.LastActivityAt), now, tenantID, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOverdueCount updates only the overdue counter.
func (r Repo) SetOverdueCount(ctx context.Context, tx *sql.Tx, tenantID, projectID string, overdue int, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET overdue_tasks=?, counters_at=? WHERE tenant_id=? AND id=?`,
		overdue, now, tenantID, projectID)
	return err
}

func (r Repo) InsertMember(ctx context.Context, tx *sql.Tx, projectID string, m domain.ProjectMember) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO project_members(project_id,user_id,role,joined_at) VALUES (?,?,?,?)`,
		projectID, m.UserID, m.Role, m.JoinedAt)
	return duplicate(err, "member "+m.UserID)
}

func (r Repo) ListMembers(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT user_id,role,joined_at FROM project_members WHERE project_id=? ORDER BY seq`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ProjectMember{}
	for rows.Next() {
		var m domain.ProjectMember
		if err := rows.Scan(&m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMemberRole(ctx context.Context, tx *sql.Tx, projectID, userID, role string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE project_members SET role=? WHERE project_id=? AND user_id=?`, role, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
