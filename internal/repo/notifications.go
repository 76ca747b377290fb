package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"taskflow/internal/domain"
)

const notificationColumns = `id,tenant_id,user_id,type,title,message,read,read_at,data_json,priority,created_at`

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	var data any
	if len(n.Data) > 0 {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return err
		}
		data = string(b)
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.TenantID, n.UserID, n.Type, n.Title, n.Message, boolToInt(n.Read), nullableStringPtr(n.ReadAt), data, n.Priority, n.CreatedAt)
	return err
}

// ListNotifications returns a user's notifications, newest first.
func (r Repo) ListNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE tenant_id=? AND user_id=?`
	args := []any{tenantID, userID}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var read int
		var readAt, data sql.NullString
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Type, &n.Title, &n.Message, &read, &readAt, &data, &n.Priority, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read == 1
		if readAt.Valid {
			n.ReadAt = &readAt.String
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &n.Data); err != nil {
				return nil, err
			}
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, tenantID, userID, id, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1, read_at=COALESCE(read_at, ?) WHERE tenant_id=? AND user_id=? AND id=?`,
		now, tenantID, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, tenantID, userID, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1, read_at=? WHERE tenant_id=? AND user_id=? AND read=0`,
		now, tenantID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
