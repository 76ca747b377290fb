package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"taskflow/internal/config"
)

type hookRecorder struct {
	mu       sync.Mutex
	types    []string
	secrets  []string
	payloads []map[string]any
	status   int
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.types = append(h.types, r.Header.Get("X-Taskflow-Event"))
	h.secrets = append(h.secrets, r.Header.Get("X-Taskflow-Secret"))
	h.payloads = append(h.payloads, body)
	if h.status != 0 {
		w.WriteHeader(h.status)
	}
}

func TestWebhooksDeliverNewEventsOnly(t *testing.T) {
	r := newTestRepo(t)
	writer := Writer{Repo: r}
	ctx := context.Background()
	if _, err := writer.Append(ctx, testMessage(TaskCreated)); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	hooks := NewWebhooks(r, []config.WebhookConfig{{
		URL:    srv.URL,
		Events: []string{TaskUpdated, CommentAdded},
		Secret: "s3cret",
	}}, nil)

	hooks.DispatchAll(ctx)
	if len(rec.types) != 0 {
		t.Fatalf("events before the first poll should be skipped, got %v", rec.types)
	}

	for _, typ := range []string{TaskUpdated, TaskDeleted, CommentAdded} {
		msg := testMessage(typ)
		msg.Payload = EventPayload{"kind": typ}
		if _, err := writer.Append(ctx, msg); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	hooks.DispatchAll(ctx)
	if len(rec.types) != 2 || rec.types[0] != TaskUpdated || rec.types[1] != CommentAdded {
		t.Fatalf("unexpected deliveries: %v", rec.types)
	}
	if rec.secrets[0] != "s3cret" {
		t.Fatalf("secret header missing")
	}
	payload, _ := rec.payloads[1]["payload"].(map[string]any)
	if payload["kind"] != CommentAdded {
		t.Fatalf("unexpected payload: %+v", rec.payloads[1])
	}

	hooks.DispatchAll(ctx)
	if len(rec.types) != 2 {
		t.Fatalf("events should not be delivered twice: %v", rec.types)
	}
}

func TestWebhookFailureRetriesSameEvent(t *testing.T) {
	r := newTestRepo(t)
	writer := Writer{Repo: r}
	ctx := context.Background()
	rec := &hookRecorder{status: http.StatusBadGateway}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	hooks := NewWebhooks(r, []config.WebhookConfig{{URL: srv.URL}}, nil)
	hooks.DispatchAll(ctx)

	if _, err := writer.Append(ctx, testMessage(TaskCreated)); err != nil {
		t.Fatalf("append: %v", err)
	}
	hooks.DispatchAll(ctx)
	rec.mu.Lock()
	rec.status = 0
	rec.mu.Unlock()
	hooks.DispatchAll(ctx)
	if len(rec.types) != 2 || rec.types[1] != TaskCreated {
		t.Fatalf("expected failed event to be retried, got %v", rec.types)
	}
}

func TestDisabledWebhookIsSkipped(t *testing.T) {
	r := newTestRepo(t)
	rec := &hookRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	off := false
	hooks := NewWebhooks(r, []config.WebhookConfig{{URL: srv.URL, Enabled: &off}}, nil)
	ctx := context.Background()
	hooks.DispatchAll(ctx)
	if _, err := (Writer{Repo: r}).Append(ctx, testMessage(TaskCreated)); err != nil {
		t.Fatalf("append: %v", err)
	}
	hooks.DispatchAll(ctx)
	if len(rec.types) != 0 {
		t.Fatalf("disabled hook received %v", rec.types)
	}
}
