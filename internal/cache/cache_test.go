package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"taskflow/internal/domain"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute, nil), mr
}

func TestProjectRoundTripAndInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	if _, ok := c.Project(ctx, "p1"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.PutProject(ctx, domain.Project{ID: "p1", Name: "Launch", OwnerID: "u1"})
	got, ok := c.Project(ctx, "p1")
	if !ok || got.Name != "Launch" {
		t.Fatalf("expected hit, got %+v ok=%v", got, ok)
	}
	if !mr.Exists("taskflow:project:p1") {
		t.Fatalf("expected taskflow:project:p1 key")
	}
	if ttl := mr.TTL("taskflow:project:p1"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
	c.InvalidateProject(ctx, "p1")
	if _, ok := c.Project(ctx, "p1"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestTaskExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.PutTask(ctx, domain.Task{ID: "t1", Title: "Write docs"})
	mr.FastForward(2 * time.Minute)
	if _, ok := c.Task(ctx, "t1"); ok {
		t.Fatalf("expected task to expire")
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	c.PutTask(ctx, domain.Task{ID: "t1"})
	c.InvalidateTask(ctx, "t1")
	if _, ok := c.Task(ctx, "t1"); ok {
		t.Fatalf("nil cache should always miss")
	}
}

func TestRedisOutageIsSwallowed(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	ctx := context.Background()
	c.PutProject(ctx, domain.Project{ID: "p1"})
	if _, ok := c.Project(ctx, "p1"); ok {
		t.Fatalf("expected miss while redis is down")
	}
}
