package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on returns tx when set, otherwise the pooled DB.
func (r Repo) on(tx *sql.Tx) dbtx {
	if tx != nil {
		return tx
	}
	return r.DB
}

const tenantColumns = `id,name,plan,is_active,max_users,current_users,allow_ai_features,allow_real_time_collab,created_at`

func scanTenant(row interface{ Scan(...any) error }) (domain.Tenant, error) {
	var t domain.Tenant
	var active, ai, rt int
	err := row.Scan(&t.ID, &t.Name, &t.Plan, &active, &t.MaxUsers, &t.CurrentUsers, &ai, &rt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.IsActive = active == 1
	t.Settings.AllowAIFeatures = ai == 1
	t.Settings.AllowRealTimeCollab = rt == 1
	return t, err
}

func (r Repo) InsertTenant(ctx context.Context, tx *sql.Tx, t domain.Tenant) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO tenants(`+tenantColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, t.Plan, boolToInt(t.IsActive), t.MaxUsers, t.CurrentUsers,
		boolToInt(t.Settings.AllowAIFeatures), boolToInt(t.Settings.AllowRealTimeCollab), t.CreatedAt)
	return duplicate(err, "tenant "+t.ID)
}

func (r Repo) GetTenant(ctx context.Context, tx *sql.Tx, id string) (domain.Tenant, error) {
	return scanTenant(r.on(tx).QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id=?`, id))
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// IncrementTenantUsers bumps current_users when the quota allows it and
// reports whether a row was updated.
func (r Repo) IncrementTenantUsers(ctx context.Context, tx *sql.Tx, tenantID string) (bool, error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE tenants SET current_users=current_users+1
WHERE id=? AND (max_users=-1 OR current_users+1<=max_users)`, tenantID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

const userColumns = `id,tenant_id,email,name,role,is_active,created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	var active int
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.Role, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.IsActive = active == 1
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.TenantID, strings.ToLower(strings.TrimSpace(u.Email)), u.Name, u.Role, boolToInt(u.IsActive), u.CreatedAt)
	return duplicate(err, "user "+u.ID)
}

// GetUser looks a user up inside a tenant scope.
func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, tenantID, id string) (domain.User, error) {
	return scanUser(r.on(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id=? AND id=?`, tenantID, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, tx *sql.Tx, tenantID, email string) (domain.User, error) {
	return scanUser(r.on(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id=? AND email=?`,
		tenantID, strings.ToLower(strings.TrimSpace(email))))
}

func (r Repo) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id=? ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// CountActiveUsers returns how many distinct ids are active users of the tenant.
func (r Repo) CountActiveUsers(ctx context.Context, tx *sql.Tx, tenantID string, ids []string) (int, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{tenantID}
	for _, id := range ids {
		args = append(args, id)
	}
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE tenant_id=? AND is_active=1 AND id IN (`+placeholders(len(ids))+`)`, args...).Scan(&n)
	return n, err
}

func (r Repo) SetUserActive(ctx context.Context, tx *sql.Tx, tenantID, id string, active bool) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE users SET is_active=? WHERE tenant_id=? AND id=?`, boolToInt(active), tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// duplicate maps a unique constraint failure to ErrDuplicate.
func duplicate(err error, what string) error {
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
