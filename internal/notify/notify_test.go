package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/events"
	"taskflow/internal/migrate"
	"taskflow/internal/repo"
)

type captureEmitter struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (c *captureEmitter) Emit(_ context.Context, msg events.Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (Service, *captureEmitter) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	em := &captureEmitter{}
	return Service{
		Repo:    repo.Repo{DB: conn},
		Emitter: em,
		Now:     func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}, em
}

func TestTaskAssignedSkipsActor(t *testing.T) {
	s, em := newTestService(t)
	ctx := context.Background()
	actor := domain.Actor{UserID: "u-1", TenantID: "acme"}
	task := domain.Task{ID: "t-1", ProjectID: "p-1", Title: "Ship", Priority: "urgent"}
	s.TaskAssigned(ctx, actor, task, []string{"u-1", "u-2", "u-2", "u-3"})

	for _, user := range []string{"u-2", "u-3"} {
		list, err := s.List(ctx, domain.Actor{UserID: user, TenantID: "acme"}, false, 10)
		if err != nil || len(list) != 1 {
			t.Fatalf("%s inbox: %+v (%v)", user, list, err)
		}
		if list[0].Priority != "high" || list[0].Type != TypeTaskAssigned {
			t.Fatalf("unexpected notification: %+v", list[0])
		}
	}
	if list, _ := s.List(ctx, actor, false, 10); len(list) != 0 {
		t.Fatalf("actor should not be notified: %+v", list)
	}
	if len(em.msgs) != 2 || em.msgs[0].Type != events.NotificationNew {
		t.Fatalf("expected two notification:new events, got %+v", em.msgs)
	}
}

func TestTaskCompletedReachesCreator(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	task := domain.Task{ID: "t-1", Title: "Ship", Assignees: []string{"u-2"}, CreatedBy: "u-3"}
	s.TaskCompleted(ctx, domain.Actor{UserID: "u-2", TenantID: "acme"}, task)
	list, err := s.List(ctx, domain.Actor{UserID: "u-3", TenantID: "acme"}, true, 10)
	if err != nil || len(list) != 1 || list[0].Type != TypeTaskCompleted {
		t.Fatalf("creator inbox: %+v (%v)", list, err)
	}
}

func TestMarkAllRead(t *testing.T) {
	s, em := newTestService(t)
	ctx := context.Background()
	user := domain.Actor{UserID: "u-2", TenantID: "acme"}
	for i := 0; i < 3; i++ {
		s.TaskAssigned(ctx, domain.Actor{UserID: "u-1", TenantID: "acme"}, domain.Task{ID: "t", Title: "x"}, []string{user.UserID})
	}
	n, err := s.MarkAllRead(ctx, user)
	if err != nil || n != 3 {
		t.Fatalf("mark all read: n=%d err=%v", n, err)
	}
	if unread, _ := s.List(ctx, user, true, 10); len(unread) != 0 {
		t.Fatalf("expected no unread, got %d", len(unread))
	}
	if last := em.msgs[len(em.msgs)-1]; last.Type != events.NotificationsAllRead {
		t.Fatalf("expected all-read event, got %s", last.Type)
	}
	if n, _ := s.MarkAllRead(ctx, user); n != 0 {
		t.Fatalf("second mark all read should touch nothing, got %d", n)
	}
}
