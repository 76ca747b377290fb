package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"taskflow/internal/ai"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/lifecycle"
)

func TestOpenWithoutRedis(t *testing.T) {
	a, err := Open(context.Background(), Options{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Redis != nil || a.Engine.Cache != nil {
		t.Fatalf("redis should be disabled without a url")
	}
	if len(a.Dispatcher.Publishers) != 1 || a.Dispatcher.Publishers[0].Name() != "websocket" {
		t.Fatalf("expected hub as sole publisher, got %d publishers", len(a.Dispatcher.Publishers))
	}
	if _, ok := a.Engine.AI.(ai.Disabled); !ok {
		t.Fatalf("ai should be disabled by default")
	}
}

func TestOpenWithRedisWiresCacheAndBridge(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := Open(ctx, Options{Workspace: t.TempDir(), RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Engine.Cache == nil {
		t.Fatalf("expected cache")
	}
	if a.Dispatcher.Publishers[0].Name() != "redis" {
		t.Fatalf("expected redis publisher, got %s", a.Dispatcher.Publishers[0].Name())
	}

	lc := lifecycle.New(time.Second, nil)
	if err := a.Start(ctx, lc); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer lc.Shutdown(context.Background())

	eng := a.Engine
	if _, err := eng.CreateTenant(ctx, engine.TenantCreateOptions{ID: "acme", Name: "Acme", Plan: domain.PlanPro}); err != nil {
		t.Fatalf("tenant: %v", err)
	}
	if _, err := eng.AddUser(ctx, engine.UserCreateOptions{TenantID: "acme", ID: "u-1", Email: "u1@acme.test", Name: "One"}); err != nil {
		t.Fatalf("user: %v", err)
	}
	actor := domain.Actor{UserID: "u-1", TenantID: "acme"}
	p, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{Actor: actor, ID: "p-1", Name: "Launch"})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if _, err := eng.GetProject(ctx, actor, p.ID); err != nil {
		t.Fatalf("get project: %v", err)
	}
	if !mr.Exists("taskflow:project:p-1") {
		t.Fatalf("project read should populate the cache")
	}
	if _, err := eng.CreateTask(ctx, engine.TaskCreateOptions{Actor: actor, ProjectID: p.ID, Title: "first"}); err != nil {
		t.Fatalf("task: %v", err)
	}
	if mr.Exists("taskflow:project:p-1") {
		t.Fatalf("task creation should invalidate the cached project")
	}
}
