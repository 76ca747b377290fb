package migrate

import (
	"context"
	"testing"

	"taskflow/internal/db"
)

func TestApplyIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	applied, err := Apply(ctx, conn)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if len(applied) == 0 {
		t.Fatalf("expected migrations to be applied")
	}
	applied, err = Apply(ctx, conn)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("second apply ran %v", applied)
	}
	v, err := Version(ctx, conn)
	if err != nil || v < 1 {
		t.Fatalf("version = %d, err = %v", v, err)
	}
	for _, table := range []string{"tenants", "users", "projects", "project_members", "tasks", "task_dependencies", "task_activity", "task_comments", "notifications", "events", "api_keys"} {
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}
}
