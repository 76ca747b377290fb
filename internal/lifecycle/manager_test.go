package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, nil)
	var order []string
	for _, name := range []string{"db", "outbox", "http"} {
		name := name
		m.Register(name, func(context.Context) error {
			order = append(order, name)
			if name == "outbox" {
				return errors.New("outbox busy")
			}
			return nil
		})
	}
	err := m.Shutdown(context.Background())
	if err == nil || err.Error() != "outbox busy" {
		t.Fatalf("expected joined outbox error, got %v", err)
	}
	if got := order; len(got) != 3 || got[0] != "http" || got[2] != "db" {
		t.Fatalf("unexpected order: %v", got)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown should be a no-op: %v", err)
	}
}

func TestShutdownAppliesTimeout(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := m.Shutdown(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
