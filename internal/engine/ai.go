package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"taskflow/internal/ai"
	"taskflow/internal/domain"
	"taskflow/internal/events"
	"taskflow/internal/repo"
)

const maxPrioritizeBatch = 50

// PrioritizeTasks asks the AI client to rank the open tasks of a project and
// stores each suggestion on the matching task. Manager only.
func (e Engine) PrioritizeTasks(ctx context.Context, actor domain.Actor, projectID string) ([]ai.Suggestion, error) {
	p, err := e.Auth.RequireManager(ctx, nil, actor, projectID)
	if err != nil {
		return nil, err
	}
	tenant, err := e.Repo.GetTenant(ctx, nil, p.TenantID)
	if err != nil {
		return nil, notFound(err, "Tenant not found")
	}
	if tenant.Plan == domain.PlanFree || !tenant.Settings.AllowAIFeatures {
		return nil, domain.Unauthorized("AI features are not available on this plan")
	}
	all, err := e.Repo.ListTasks(ctx, repo.TaskFilters{TenantID: p.TenantID, ProjectID: p.ID})
	if err != nil {
		return nil, err
	}
	byID := map[string]domain.Task{}
	var inputs []ai.TaskInput
	for _, t := range all {
		if t.Status == domain.StatusDone || t.Status == domain.StatusCancelled {
			continue
		}
		if len(inputs) == maxPrioritizeBatch {
			break
		}
		children, err := e.Repo.CountChildren(ctx, nil, p.TenantID, t.ID)
		if err != nil {
			return nil, err
		}
		byID[t.ID] = t
		inputs = append(inputs, ai.TaskInput{
			ID:              t.ID,
			Title:           t.Title,
			Description:     t.Description,
			CurrentPriority: t.Priority,
			DueDate:         t.DueDate,
			Dependencies:    len(t.Dependencies),
			Subtasks:        children,
			Status:          t.Status,
			Tags:            t.Tags,
		})
	}
	if len(inputs) == 0 {
		return nil, domain.Invalid("No tasks to prioritize")
	}
	client := e.AI
	if client == nil {
		client = ai.Disabled{}
	}
	suggestions, err := client.PrioritizeTasks(ctx, ai.ProjectInput{
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		TeamSize:    len(p.Members),
	}, inputs)
	if errors.Is(err, ai.ErrDisabled) {
		return nil, domain.Invalid("AI features are disabled")
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "AI prioritization failed", err)
	}

	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	applied := make([]ai.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if _, ok := byID[s.TaskID]; !ok {
			e.log().Warn("ai suggestion for unknown task", zap.String("task_id", s.TaskID))
			continue
		}
		meta := domain.AIMetadata{
			Reasoning:      s.Reasoning,
			LastAnalyzedAt: now,
		}
		if validEnum(domain.Priorities, s.SuggestedPriority) {
			meta.SuggestedPriority = s.SuggestedPriority
		}
		score, complexity := s.PriorityScore, s.EstimatedComplexity
		meta.PriorityScore, meta.ComplexityScore = &score, &complexity
		if s.SuggestedDueDate != "" {
			if due, err := normalizeDate("suggested due date", &s.SuggestedDueDate); err == nil {
				meta.SuggestedDueDate = due
			}
		}
		if err := e.Repo.UpdateAIMetadata(ctx, tx, p.TenantID, s.TaskID, meta, now); err != nil {
			return nil, err
		}
		if _, err := e.Repo.AppendActivity(ctx, tx, domain.ActivityEntry{
			TaskID: s.TaskID, UserID: actor.UserID, Action: "ai_prioritization",
			Details:   map[string]any{"suggested_priority": meta.SuggestedPriority, "priority_score": score},
			Timestamp: now,
		}); err != nil {
			return nil, err
		}
		applied = append(applied, s)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, s := range applied {
		e.Cache.InvalidateTask(ctx, s.TaskID)
	}
	e.emit(ctx, events.Message{
		Type: events.ProjectUpdated, TenantID: p.TenantID, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID,
		ActorID: actor.UserID, Payload: events.EventPayload{"changes": []string{"ai_metadata"}, "tasks": len(applied)},
	})
	return applied, nil
}
