package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskflow/internal/domain"
	"taskflow/internal/events"
	"taskflow/internal/repo"
)

const (
	TypeTaskAssigned     = "task_assigned"
	TypeTaskCompleted    = "task_completed"
	TypeCommentMention   = "comment_mention"
	TypeProjectUpdate    = "project_update"
	TypeDeadlineReminder = "deadline_reminder"
)

// Emitter is the subset of events.Dispatcher used here.
type Emitter interface {
	Emit(ctx context.Context, msg events.Message)
}

// Service stores per-user notifications and pushes them on the user channel.
// Dispatch is best-effort: failures are logged and never returned.
type Service struct {
	Repo    repo.Repo
	Emitter Emitter
	Logger  *zap.Logger
	Now     func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// TaskAssigned notifies newly assigned users, skipping the actor.
func (s Service) TaskAssigned(ctx context.Context, actor domain.Actor, t domain.Task, userIDs []string) {
	s.dispatch(ctx, actor, recipients(userIDs, actor.UserID), domain.Notification{
		Type:     TypeTaskAssigned,
		Title:    "New task assigned",
		Message:  fmt.Sprintf("You have been assigned to %q", t.Title),
		Priority: notificationPriority(t.Priority),
		Data:     map[string]any{"task_id": t.ID, "project_id": t.ProjectID, "assigned_by": actor.UserID},
	})
}

// TaskCompleted notifies assignees and the creator that t is done, skipping the actor.
func (s Service) TaskCompleted(ctx context.Context, actor domain.Actor, t domain.Task) {
	users := append(append([]string{}, t.Assignees...), t.CreatedBy)
	s.dispatch(ctx, actor, recipients(users, actor.UserID), domain.Notification{
		Type:     TypeTaskCompleted,
		Title:    "Task completed",
		Message:  fmt.Sprintf("%q was marked as done", t.Title),
		Priority: "low",
		Data:     map[string]any{"task_id": t.ID, "project_id": t.ProjectID, "completed_by": actor.UserID},
	})
}

func (s Service) dispatch(ctx context.Context, actor domain.Actor, userIDs []string, tmpl domain.Notification) {
	if len(userIDs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC().Format(time.RFC3339)
	for _, userID := range userIDs {
		n := tmpl
		n.ID = uuid.NewString()
		n.TenantID = actor.TenantID
		n.UserID = userID
		n.CreatedAt = now
		if err := s.Repo.InsertNotification(ctx, nil, n); err != nil {
			s.logger().Warn("notification insert failed", zap.String("type", n.Type), zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if s.Emitter != nil {
			s.Emitter.Emit(ctx, events.Message{
				Type:       events.NotificationNew,
				TenantID:   actor.TenantID,
				EntityKind: "notification",
				EntityID:   n.ID,
				ActorID:    actor.UserID,
				UserIDs:    []string{userID},
				Payload:    events.EventPayload{"notification": n},
				TS:         now,
			})
		}
	}
}

func (s Service) List(ctx context.Context, actor domain.Actor, unreadOnly bool, limit int) ([]domain.Notification, error) {
	return s.Repo.ListNotifications(ctx, actor.TenantID, actor.UserID, unreadOnly, limit)
}

func (s Service) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	now := s.now().UTC().Format(time.RFC3339)
	if err := s.Repo.MarkNotificationRead(ctx, actor.TenantID, actor.UserID, id, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.NotFound("Notification not found")
		}
		return err
	}
	if s.Emitter != nil {
		s.Emitter.Emit(ctx, events.Message{
			Type: events.NotificationRead, TenantID: actor.TenantID, EntityKind: "notification", EntityID: id,
			ActorID: actor.UserID, UserIDs: []string{actor.UserID}, TS: now,
		})
	}
	return nil
}

func (s Service) MarkAllRead(ctx context.Context, actor domain.Actor) (int64, error) {
	now := s.now().UTC().Format(time.RFC3339)
	n, err := s.Repo.MarkAllNotificationsRead(ctx, actor.TenantID, actor.UserID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.Emitter != nil {
		s.Emitter.Emit(ctx, events.Message{
			Type: events.NotificationsAllRead, TenantID: actor.TenantID, EntityKind: "notification",
			ActorID: actor.UserID, UserIDs: []string{actor.UserID}, Payload: events.EventPayload{"count": n}, TS: now,
		})
	}
	return n, nil
}

func recipients(userIDs []string, exclude string) []string {
	seen := map[string]struct{}{exclude: {}}
	var out []string
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func notificationPriority(taskPriority string) string {
	switch taskPriority {
	case "high", "urgent":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}
