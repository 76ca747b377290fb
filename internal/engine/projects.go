package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"taskflow/internal/domain"
	"taskflow/internal/events"
	"taskflow/internal/repo"
)

const (
	maxProjectName        = 100
	maxProjectDescription = 500
)

type ProjectCreateOptions struct {
	Actor       domain.Actor
	ID          string
	Name        string
	Description string
	Status      string
	Priority    string
	StartDate   *string
	EndDate     *string
	Settings    domain.ProjectSettings
}

func validateProjectFields(name, description, status, priority string, start, end *string) error {
	if strings.TrimSpace(name) == "" {
		return domain.Invalid("Project name is required")
	}
	if len(name) > maxProjectName {
		return domain.Invalid("Project name cannot exceed 100 characters")
	}
	if len(description) > maxProjectDescription {
		return domain.Invalid("Project description cannot exceed 500 characters")
	}
	if !validEnum(domain.ProjectStatuses, status) {
		return domain.Invalid("Invalid project status: " + status)
	}
	if !validEnum(domain.Priorities, priority) {
		return domain.Invalid("Invalid priority: " + priority)
	}
	if start != nil && end != nil && *end < *start {
		return domain.Invalid("End date must be after start date")
	}
	return nil
}

// CreateProject makes the actor the owner and first manager of a new project.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Status == "" {
		opts.Status = "planning"
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	start, err := normalizeDate("start date", opts.StartDate)
	if err != nil {
		return domain.Project{}, err
	}
	end, err := normalizeDate("end date", opts.EndDate)
	if err != nil {
		return domain.Project{}, err
	}
	opts.Name = strings.TrimSpace(opts.Name)
	if err := validateProjectFields(opts.Name, opts.Description, opts.Status, opts.Priority, start, end); err != nil {
		return domain.Project{}, err
	}
	if _, err := e.Auth.ActiveUser(ctx, nil, opts.Actor); err != nil {
		return domain.Project{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.timestamp()
	p := domain.Project{
		ID:          id,
		TenantID:    opts.Actor.TenantID,
		Name:        opts.Name,
		Description: opts.Description,
		Status:      opts.Status,
		Priority:    opts.Priority,
		StartDate:   start,
		EndDate:     end,
		OwnerID:     opts.Actor.UserID,
		Members:     []domain.ProjectMember{{UserID: opts.Actor.UserID, Role: domain.RoleManager, JoinedAt: now}},
		Settings:    opts.Settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Project{}, domain.ConflictError("Project already exists")
		}
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// GetProject returns a project the actor is a member of.
func (e Engine) GetProject(ctx context.Context, actor domain.Actor, id string) (domain.Project, error) {
	if p, ok := e.Cache.Project(ctx, id); ok && p.TenantID == actor.TenantID {
		if !domain.IsMember(p, actor.UserID) {
			return domain.Project{}, domain.Unauthorized("You do not have access to this project")
		}
		if _, err := e.Auth.ActiveUser(ctx, nil, actor); err != nil {
			return domain.Project{}, err
		}
		return p, nil
	}
	p, err := e.Auth.RequireMember(ctx, nil, actor, id)
	if err != nil {
		return domain.Project{}, err
	}
	e.Cache.PutProject(ctx, p)
	return p, nil
}

type ProjectListOptions struct {
	Status   string
	Priority string
	Search   string
}

// ListProjects returns projects the actor owns or belongs to.
func (e Engine) ListProjects(ctx context.Context, actor domain.Actor, opts ProjectListOptions) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, repo.ProjectFilters{
		TenantID:  actor.TenantID,
		VisibleTo: actor.UserID,
		Status:    opts.Status,
		Priority:  opts.Priority,
		Search:    strings.TrimSpace(opts.Search),
	})
}

type ProjectUpdateOptions struct {
	Actor       domain.Actor
	ID          string
	Name        *string
	Description *string
	Status      *string
	Priority    *string
	StartDate   *string
	EndDate     *string
	Settings    *domain.ProjectSettings
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Auth.RequireManager(ctx, nil, opts.Actor, opts.ID)
	if err != nil {
		return p, err
	}
	changed := []string{}
	if opts.Name != nil && strings.TrimSpace(*opts.Name) != p.Name {
		p.Name = strings.TrimSpace(*opts.Name)
		changed = append(changed, "name")
	}
	if opts.Description != nil && *opts.Description != p.Description {
		p.Description = *opts.Description
		changed = append(changed, "description")
	}
	if opts.Status != nil && *opts.Status != p.Status {
		p.Status = *opts.Status
		changed = append(changed, "status")
	}
	if opts.Priority != nil && *opts.Priority != p.Priority {
		p.Priority = *opts.Priority
		changed = append(changed, "priority")
	}
	if opts.StartDate != nil {
		start, err := normalizeDate("start date", opts.StartDate)
		if err != nil {
			return p, err
		}
		if ptrValue(start) != ptrValue(p.StartDate) {
			p.StartDate = start
			changed = append(changed, "start_date")
		}
	}
	if opts.EndDate != nil {
		end, err := normalizeDate("end date", opts.EndDate)
		if err != nil {
			return p, err
		}
		if ptrValue(end) != ptrValue(p.EndDate) {
			p.EndDate = end
			changed = append(changed, "end_date")
		}
	}
	if opts.Settings != nil && *opts.Settings != p.Settings {
		p.Settings = *opts.Settings
		changed = append(changed, "settings")
	}
	if err := validateProjectFields(p.Name, p.Description, p.Status, p.Priority, p.StartDate, p.EndDate); err != nil {
		return p, err
	}
	if len(changed) == 0 {
		return p, nil
	}
	p.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateProject(ctx, nil, p); err != nil {
		return p, notFound(err, "Project not found")
	}
	e.Cache.InvalidateProject(ctx, p.ID)
	e.emit(ctx, events.Message{
		Type: events.ProjectUpdated, TenantID: p.TenantID, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID,
		ActorID: opts.Actor.UserID, Payload: events.EventPayload{"changes": changed},
	})
	return p, nil
}

// DeleteProject removes a project and, by cascade, its tasks. Owner only.
func (e Engine) DeleteProject(ctx context.Context, actor domain.Actor, id string) error {
	p, err := e.Auth.RequireOwner(ctx, nil, actor, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteProject(ctx, nil, p.TenantID, p.ID); err != nil {
		return notFound(err, "Project not found")
	}
	e.Cache.InvalidateProject(ctx, p.ID)
	e.emit(ctx, events.Message{
		Type: events.ProjectDeleted, TenantID: p.TenantID, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: actor.UserID,
	})
	return nil
}

// AddMember invites an active tenant user. Managers may always invite;
// members may invite plain members when the project allows it.
func (e Engine) AddMember(ctx context.Context, actor domain.Actor, projectID, userID, role string) (domain.Project, error) {
	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleManager && role != domain.RoleMember {
		return domain.Project{}, domain.Invalid("Invalid member role: " + role)
	}
	p, actorRole, err := e.Auth.Role(ctx, nil, actor, projectID)
	if err != nil {
		return p, err
	}
	switch {
	case actorRole == domain.RoleManager:
	case actorRole == domain.RoleMember && p.Settings.AllowedMemberInvite && role == domain.RoleMember:
	case actorRole == domain.RoleNone:
		return p, domain.Unauthorized("You do not have access to this project")
	default:
		return p, domain.Unauthorized("Only project managers can add members")
	}
	u, err := e.Repo.GetUser(ctx, nil, actor.TenantID, userID)
	if err != nil {
		return p, notFound(err, "User not found")
	}
	if !u.IsActive {
		return p, domain.Invalid("User is not active")
	}
	if domain.IsMember(p, userID) {
		return p, domain.ConflictError("User is already a project member")
	}
	m := domain.ProjectMember{UserID: userID, Role: role, JoinedAt: e.timestamp()}
	if err := e.Repo.InsertMember(ctx, nil, p.ID, m); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return p, domain.ConflictError("User is already a project member")
		}
		return p, err
	}
	p.Members = append(p.Members, m)
	e.Cache.InvalidateProject(ctx, p.ID)
	e.emit(ctx, events.Message{
		Type: events.ProjectMemberAdded, TenantID: p.TenantID, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID,
		ActorID: actor.UserID, UserIDs: []string{userID}, Payload: events.EventPayload{"user_id": userID, "role": role},
	})
	return p, nil
}

func (e Engine) RemoveMember(ctx context.Context, actor domain.Actor, projectID, userID string) (domain.Project, error) {
	p, err := e.Auth.RequireManager(ctx, nil, actor, projectID)
	if err != nil {
		return p, err
	}
	if userID == p.OwnerID {
		return p, domain.Invalid("Cannot remove the project owner")
	}
	if err := e.Repo.DeleteMember(ctx, nil, p.ID, userID); err != nil {
		return p, notFound(err, "Member not found")
	}
	members := p.Members[:0]
	for _, m := range p.Members {
		if m.UserID != userID {
			members = append(members, m)
		}
	}
	p.Members = members
	e.Cache.InvalidateProject(ctx, p.ID)
	e.emit(ctx, events.Message{
		Type: events.ProjectMemberRemoved, TenantID: p.TenantID, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID,
		ActorID: actor.UserID, UserIDs: []string{userID}, Payload: events.EventPayload{"user_id": userID},
	})
	return p, nil
}

func (e Engine) UpdateMemberRole(ctx context.Context, actor domain.Actor, projectID, userID, role string) (domain.Project, error) {
	if role != domain.RoleManager && role != domain.RoleMember {
		return domain.Project{}, domain.Invalid("Invalid member role: " + role)
	}
	p, err := e.Auth.RequireManager(ctx, nil, actor, projectID)
	if err != nil {
		return p, err
	}
	if userID == p.OwnerID {
		return p, domain.Invalid("Cannot change the project owner's role")
	}
	if err := e.Repo.UpdateMemberRole(ctx, nil, p.ID, userID, role); err != nil {
		return p, notFound(err, "Member not found")
	}
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			p.Members[i].Role = role
		}
	}
	e.Cache.InvalidateProject(ctx, p.ID)
	e.emit(ctx, events.Message{
		Type: events.ProjectUpdated, TenantID: p.TenantID, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID,
		ActorID: actor.UserID, Payload: events.EventPayload{"changes": []string{"members"}, "user_id": userID, "role": role},
	})
	return p, nil
}
