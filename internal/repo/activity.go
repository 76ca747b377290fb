package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"taskflow/internal/domain"
)

// AppendActivity adds one audit row and returns its sequence number.
func (r Repo) AppendActivity(ctx context.Context, tx *sql.Tx, e domain.ActivityEntry) (int64, error) {
	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return 0, err
		}
		details = string(b)
	}
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO task_activity(task_id,user_id,action,details_json,ts) VALUES (?,?,?,?,?)`,
		e.TaskID, e.UserID, e.Action, details, e.Timestamp)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListActivity returns entries with seq greater than after, oldest first.
func (r Repo) ListActivity(ctx context.Context, taskID string, after int64, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT seq,task_id,user_id,action,details_json,ts FROM task_activity
WHERE task_id=? AND seq>? ORDER BY seq LIMIT ?`, taskID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ActivityEntry{}
	for rows.Next() {
		var e domain.ActivityEntry
		var details sql.NullString
		if err := rows.Scan(&e.Seq, &e.TaskID, &e.UserID, &e.Action, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, err
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO task_comments(id,task_id,user_id,text,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.UserID, c.Text, c.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListComments pages comments by sequence, oldest first.
func (r Repo) ListComments(ctx context.Context, taskID string, after int64, limit int) ([]domain.Comment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT seq,id,task_id,user_id,text,created_at FROM task_comments
WHERE task_id=? AND seq>? ORDER BY seq LIMIT ?`, taskID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.Seq, &c.ID, &c.TaskID, &c.UserID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
