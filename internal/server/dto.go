package server

import (
	"taskflow/internal/ai"
	"taskflow/internal/domain"
)

// Request payloads

// Create requests carry no id. Ids are generated server-side and are only
// unique globally, so a caller-chosen id would collide across tenants.
type CreateProjectRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Status      string                  `json:"status,omitempty" enum:"planning,active,on-hold,completed,cancelled"`
	Priority    string                  `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	StartDate   *string                 `json:"start_date,omitempty"`
	EndDate     *string                 `json:"end_date,omitempty"`
	Settings    *domain.ProjectSettings `json:"settings,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string                 `json:"name,omitempty"`
	Description *string                 `json:"description,omitempty"`
	Status      *string                 `json:"status,omitempty" enum:"planning,active,on-hold,completed,cancelled"`
	Priority    *string                 `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	StartDate   *string                 `json:"start_date,omitempty"`
	EndDate     *string                 `json:"end_date,omitempty"`
	Settings    *domain.ProjectSettings `json:"settings,omitempty"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty" enum:"manager,member"`
}

type MemberRoleRequest struct {
	Role string `json:"role" enum:"manager,member"`
}

type CreateTaskRequest struct {
	ParentTaskID   string              `json:"parent_task_id,omitempty"`
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	Status         string              `json:"status,omitempty" enum:"todo,in-progress,review,done,cancelled"`
	Priority       string              `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	DueDate        *string             `json:"due_date,omitempty"`
	StartDate      *string             `json:"start_date,omitempty"`
	EstimatedHours *float64            `json:"estimated_hours,omitempty"`
	Assignees      []string            `json:"assignees,omitempty"`
	Tags           []string            `json:"tags,omitempty"`
	Dependencies   []domain.Dependency `json:"dependencies,omitempty"`
}

type UpdateTaskRequest struct {
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Status         *string   `json:"status,omitempty" enum:"todo,in-progress,review,done,cancelled"`
	Priority       *string   `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	DueDate        *string   `json:"due_date,omitempty"`
	StartDate      *string   `json:"start_date,omitempty"`
	EstimatedHours *float64  `json:"estimated_hours,omitempty"`
	ActualHours    *float64  `json:"actual_hours,omitempty"`
	Assignees      *[]string `json:"assignees,omitempty"`
	Tags           *[]string `json:"tags,omitempty"`
	ParentTaskID   *string   `json:"parent_task_id,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"todo,in-progress,review,done,cancelled"`
}

type AddDependencyRequest struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type,omitempty" enum:"blocks,blocked-by"`
}

type AddCommentRequest struct {
	Text string `json:"text"`
}

type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty" enum:"admin,manager,member"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

// Response payloads

type MeResponse struct {
	User   domain.User   `json:"user"`
	Tenant domain.Tenant `json:"tenant"`
}

type ProjectResponse struct {
	domain.Project
	Progress int `json:"progress"`
}

type CanStartResponse struct {
	TaskID   string `json:"task_id"`
	CanStart bool   `json:"can_start"`
}

type ActivityPage struct {
	Items      []domain.ActivityEntry `json:"items"`
	NextCursor *int64                 `json:"next_cursor,omitempty"`
}

type CommentPage struct {
	Items      []domain.Comment `json:"items"`
	NextCursor *int64           `json:"next_cursor,omitempty"`
}

type PrioritizeResponse struct {
	ProjectID   string          `json:"project_id"`
	Suggestions []ai.Suggestion `json:"suggestions"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type APIKeyCreatedResponse struct {
	Key   domain.APIKey `json:"key"`
	Token string        `json:"token"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func projectResponse(p domain.Project) ProjectResponse {
	if p.Members == nil {
		p.Members = []domain.ProjectMember{}
	}
	return ProjectResponse{Project: p, Progress: domain.Progress(p.Metadata)}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
