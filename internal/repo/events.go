package repo

import (
	"context"
	"database/sql"

	"taskflow/internal/domain"
)

const eventColumns = `id,ts,type,tenant_id,project_id,entity_kind,entity_id,actor_id,payload_json`

func scanEvent(row interface{ Scan(...any) error }) (domain.Event, error) {
	var e domain.Event
	var projectID, entityID, payload sql.NullString
	if err := row.Scan(&e.ID, &e.TS, &e.Type, &e.TenantID, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
		return e, err
	}
	e.ProjectID = projectID.String
	e.EntityID = entityID.String
	e.Payload = payload.String
	return e, nil
}

// InsertEvent persists e and returns its assigned id.
func (r Repo) InsertEvent(ctx context.Context, tx *sql.Tx, e domain.Event) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO events(ts,type,tenant_id,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		e.TS, e.Type, e.TenantID, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, nullable(e.Payload))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestEvents returns up to limit events of a project, newest first.
func (r Repo) LatestEvents(ctx context.Context, tenantID, projectID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE tenant_id=? AND project_id=? ORDER BY id DESC LIMIT ?`,
		tenantID, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns events with id greater than afterID in ascending order.
// An empty projectID matches all projects.
func (r Repo) EventsAfter(ctx context.Context, projectID string, afterID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE id>?`
	args := []any{afterID}
	if projectID != "" {
		query += ` AND project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	res := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
