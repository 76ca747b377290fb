package auth_test

import (
	"context"
	"testing"

	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/engine/auth"
	"taskflow/internal/migrate"
	"taskflow/internal/repo"
)

func seed(t *testing.T) (auth.Evaluator, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	now := "2024-01-01T00:00:00Z"
	if err := r.InsertTenant(ctx, nil, domain.Tenant{ID: "acme", Name: "Acme", Plan: domain.PlanPro, IsActive: true, MaxUsers: 10, CreatedAt: now}); err != nil {
		t.Fatalf("tenant: %v", err)
	}
	for _, id := range []string{"owner", "mgr", "dev", "stranger"} {
		if err := r.InsertUser(ctx, nil, domain.User{ID: id, TenantID: "acme", Email: id + "@acme.test", Name: id, Role: "member", IsActive: true, CreatedAt: now}); err != nil {
			t.Fatalf("user %s: %v", id, err)
		}
	}
	p := domain.Project{
		ID: "p-1", TenantID: "acme", Name: "Launch", Status: "active", Priority: "medium", OwnerID: "owner",
		Members: []domain.ProjectMember{
			{UserID: "mgr", Role: domain.RoleManager, JoinedAt: now},
			{UserID: "dev", Role: domain.RoleMember, JoinedAt: now},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := r.InsertProject(ctx, nil, p); err != nil {
		t.Fatalf("project: %v", err)
	}
	return auth.Evaluator{Repo: r}, r
}

func TestRoleResolution(t *testing.T) {
	ev, _ := seed(t)
	ctx := context.Background()
	cases := []struct {
		user string
		want string
	}{
		{"owner", domain.RoleManager},
		{"mgr", domain.RoleManager},
		{"dev", domain.RoleMember},
		{"stranger", domain.RoleNone},
	}
	for _, tc := range cases {
		_, role, err := ev.Role(ctx, nil, domain.Actor{UserID: tc.user, TenantID: "acme"}, "p-1")
		if err != nil {
			t.Fatalf("%s: %v", tc.user, err)
		}
		if role != tc.want {
			t.Fatalf("%s: role %q, want %q", tc.user, role, tc.want)
		}
	}
}

func TestRequireGates(t *testing.T) {
	ev, _ := seed(t)
	ctx := context.Background()
	dev := domain.Actor{UserID: "dev", TenantID: "acme"}
	mgr := domain.Actor{UserID: "mgr", TenantID: "acme"}

	if _, err := ev.RequireMember(ctx, nil, dev, "p-1"); err != nil {
		t.Fatalf("member gate: %v", err)
	}
	if _, err := ev.RequireManager(ctx, nil, dev, "p-1"); !domain.IsKind(err, domain.KindAuthorization) {
		t.Fatalf("expected authorization error for member, got %v", err)
	}
	if _, err := ev.RequireManager(ctx, nil, mgr, "p-1"); err != nil {
		t.Fatalf("manager gate: %v", err)
	}
	if _, err := ev.RequireOwner(ctx, nil, mgr, "p-1"); !domain.IsKind(err, domain.KindAuthorization) {
		t.Fatalf("expected owner gate to reject manager, got %v", err)
	}
	stranger := domain.Actor{UserID: "stranger", TenantID: "acme"}
	if _, err := ev.RequireMember(ctx, nil, stranger, "p-1"); !domain.IsKind(err, domain.KindAuthorization) {
		t.Fatalf("expected authorization error for stranger, got %v", err)
	}
	foreign := domain.Actor{UserID: "owner", TenantID: "globex"}
	if _, err := ev.RequireMember(ctx, nil, foreign, "p-1"); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("cross-tenant lookup should read as not found, got %v", err)
	}
}

func TestActiveUser(t *testing.T) {
	ev, r := seed(t)
	ctx := context.Background()
	dev := domain.Actor{UserID: "dev", TenantID: "acme"}
	if _, err := ev.ActiveUser(ctx, nil, dev); err != nil {
		t.Fatalf("active user: %v", err)
	}
	if err := r.SetUserActive(ctx, nil, "acme", "dev", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := ev.ActiveUser(ctx, nil, dev); !domain.IsKind(err, domain.KindAuthorization) {
		t.Fatalf("expected inactive user to be rejected, got %v", err)
	}
	if _, err := ev.ActiveUser(ctx, nil, domain.Actor{UserID: "ghost", TenantID: "acme"}); !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected missing user, got %v", err)
	}
}

func TestGatesRejectDeactivatedMembers(t *testing.T) {
	ev, r := seed(t)
	ctx := context.Background()
	dev := domain.Actor{UserID: "dev", TenantID: "acme"}
	mgr := domain.Actor{UserID: "mgr", TenantID: "acme"}
	if err := r.SetUserActive(ctx, nil, "acme", "dev", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := ev.RequireMember(ctx, nil, dev, "p-1"); !domain.IsKind(err, domain.KindAuthorization) {
		t.Fatalf("expected deactivated member to be rejected, got %v", err)
	}
	if _, _, err := ev.Role(ctx, nil, dev, "p-1"); err == nil {
		t.Fatalf("expected role lookup to fail for deactivated member")
	}
	if _, err := ev.RequireManager(ctx, nil, mgr, "p-1"); err != nil {
		t.Fatalf("active manager should pass: %v", err)
	}
}
