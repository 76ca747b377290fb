package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/config"
	"taskflow/internal/domain"
	"taskflow/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Webhooks tails the events table and POSTs each event to the configured
// hooks. Each hook keeps its own cursor, starting at the latest event seen
// when the hook is first polled.
type Webhooks struct {
	Repo   repo.Repo
	Hooks  []config.WebhookConfig
	Client *http.Client
	Logger *zap.Logger

	mu      sync.Mutex
	cursors map[int]int64
}

func NewWebhooks(r repo.Repo, hooks []config.WebhookConfig, logger *zap.Logger) *Webhooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhooks{
		Repo:    r,
		Hooks:   hooks,
		Client:  &http.Client{Timeout: defaultWebhookTimeout},
		Logger:  logger,
		cursors: make(map[int]int64),
	}
}

// Run polls until ctx is cancelled.
func (w *Webhooks) Run(ctx context.Context) {
	if len(w.Hooks) == 0 {
		return
	}
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		w.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Webhooks) DispatchAll(ctx context.Context) {
	for i, hook := range w.Hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		w.dispatchWebhook(ctx, i, hook)
	}
}

func (w *Webhooks) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := w.cursorFor(ctx, idx)
	events, err := w.Repo.EventsAfter(ctx, "", cursor, defaultWebhookBatch)
	if err != nil {
		w.Logger.Warn("webhook: fetch events failed", zap.Error(err))
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			w.setCursor(idx, evt.ID)
			continue
		}
		if err := w.postEvent(ctx, hook, evt); err != nil {
			w.Logger.Warn("webhook: delivery failed", zap.String("url", hook.URL), zap.Int64("event_id", evt.ID), zap.Error(err))
			return
		}
		w.setCursor(idx, evt.ID)
	}
}

func (w *Webhooks) cursorFor(ctx context.Context, idx int) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cursors == nil {
		w.cursors = make(map[int]int64)
	}
	if cur, ok := w.cursors[idx]; ok {
		return cur
	}
	cur, err := w.Repo.LatestEventID(ctx)
	if err != nil {
		w.Logger.Warn("webhook: init cursor failed", zap.Error(err))
		cur = 0
	}
	w.cursors[idx] = cur
	return cur
}

func (w *Webhooks) setCursor(idx int, value int64) {
	w.mu.Lock()
	w.cursors[idx] = value
	w.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenant_id"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (w *Webhooks) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		TenantID:   evt.TenantID,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskflow-Event", evt.Type)
	req.Header.Set("X-Taskflow-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Taskflow-Tenant", evt.TenantID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Taskflow-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
