package events

import (
	"context"
	"encoding/json"
	"fmt"

	"taskflow/internal/domain"
	"taskflow/internal/repo"
)

const (
	TaskCreated          = "task:created"
	TaskUpdated          = "task:updated"
	TaskDeleted          = "task:deleted"
	TaskAssigned         = "task:assigned"
	CommentAdded         = "comment:added"
	ProjectUpdated       = "project:updated"
	ProjectDeleted       = "project:deleted"
	ProjectMemberAdded   = "project:member:added"
	ProjectMemberRemoved = "project:member:removed"
	NotificationNew      = "notification:new"
	NotificationRead     = "notification:read"
	NotificationsAllRead = "notifications:all:read"
)

type EventPayload map[string]any

// Message is one emitted event. UserIDs lists users that should also receive
// it on their personal channel.
type Message struct {
	ID         int64        `json:"id,omitempty"`
	Type       string       `json:"type"`
	TenantID   string       `json:"tenant_id"`
	ProjectID  string       `json:"project_id,omitempty"`
	EntityKind string       `json:"entity_kind"`
	EntityID   string       `json:"entity_id,omitempty"`
	ActorID    string       `json:"actor_id"`
	UserIDs    []string     `json:"user_ids,omitempty"`
	Payload    EventPayload `json:"payload,omitempty"`
	TS         string       `json:"ts"`
}

// Writer persists messages to the events table.
type Writer struct {
	Repo repo.Repo
}

func (w Writer) Append(ctx context.Context, msg Message) (int64, error) {
	payload := msg.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	return w.Repo.InsertEvent(ctx, nil, domain.Event{
		TS:         msg.TS,
		Type:       msg.Type,
		TenantID:   msg.TenantID,
		ProjectID:  msg.ProjectID,
		EntityKind: msg.EntityKind,
		EntityID:   msg.EntityID,
		ActorID:    msg.ActorID,
		Payload:    string(data),
	})
}

// FromEvent rebuilds a message from a stored event row.
func FromEvent(e domain.Event) Message {
	msg := Message{
		ID:         e.ID,
		Type:       e.Type,
		TenantID:   e.TenantID,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		TS:         e.TS,
	}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &msg.Payload)
	}
	return msg
}
