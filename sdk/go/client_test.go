package taskflowsdk

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/migrate"
	"taskflow/internal/server"
)

const secret = "sdk-secret"

func startServer(t *testing.T) string {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	ctx := context.Background()
	if _, err := e.CreateTenant(ctx, engine.TenantCreateOptions{ID: "acme", Name: "Acme", Plan: domain.PlanPro}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	for _, id := range []string{"alice", "bob"} {
		if _, err := e.AddUser(ctx, engine.UserCreateOptions{TenantID: "acme", ID: id, Email: id + "@acme.test", Name: id}); err != nil {
			t.Fatalf("add user: %v", err)
		}
	}
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v1", Auth: server.AuthConfig{JWTSecret: secret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return "http://" + ln.Addr().String() + "/v1"
}

func clientFor(t *testing.T, baseURL, userID string) *Client {
	t.Helper()
	token, err := server.SignToken(secret, userID, "acme", 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	c := New(baseURL)
	c.BearerToken = token
	return c
}

func TestClientTaskFlow(t *testing.T) {
	baseURL := startServer(t)
	ctx := context.Background()
	alice := clientFor(t, baseURL, "alice")

	p, err := alice.CreateProject(ctx, "Launch", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := alice.AddMember(ctx, p.ID, "bob", ""); err != nil {
		t.Fatalf("add member: %v", err)
	}
	first, err := alice.CreateTask(ctx, p.ID, "Design", "bob")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	second, err := alice.CreateTask(ctx, p.ID, "Build")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := alice.AddDependency(ctx, second.ID, first.ID, "blocked-by"); err != nil {
		t.Fatalf("add dependency: %v", err)
	}
	ok, err := alice.CanStart(ctx, second.ID)
	if err != nil || ok {
		t.Fatalf("expected blocked task, got ok=%v err=%v", ok, err)
	}

	bob := clientFor(t, baseURL, "bob")
	done, err := bob.SetStatus(ctx, first.ID, "done")
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatalf("expected completed_at on done task")
	}
	if ok, err := bob.CanStart(ctx, second.ID); err != nil || !ok {
		t.Fatalf("expected startable task, got ok=%v err=%v", ok, err)
	}

	page, err := alice.ListTasks(ctx, p.ID, 1, "")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(page.Tasks) != 1 || page.NextCursor == "" {
		t.Fatalf("expected one task and a cursor, got %+v", page)
	}

	activity, err := alice.Activity(ctx, first.ID, 0, 0)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(activity.Items) != 2 || activity.Items[1].Action != "updated" {
		t.Fatalf("unexpected activity: %+v", activity.Items)
	}

	got, err := alice.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Metadata.TotalTasks != 2 || got.Metadata.CompletedTasks != 1 || got.Progress != 50 {
		t.Fatalf("unexpected counters: %+v progress=%d", got.Metadata, got.Progress)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	baseURL := startServer(t)
	ctx := context.Background()
	alice := clientFor(t, baseURL, "alice")
	p, err := alice.CreateProject(ctx, "Private", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	bob := clientFor(t, baseURL, "bob")
	_, err = bob.GetProject(ctx, p.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "forbidden" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}

	anon := New(baseURL)
	_, err = anon.GetProject(ctx, p.ID)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
