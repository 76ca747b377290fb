package auth

import (
	"context"
	"database/sql"
	"errors"

	"taskflow/internal/domain"
	"taskflow/internal/repo"
)

var (
	errNoAccess   = domain.Unauthorized("You do not have access to this project")
	errNotManager = domain.Unauthorized("Only project managers can perform this action")
	errNotOwner   = domain.Unauthorized("Only the project owner can perform this action")
	errInactive   = domain.Unauthorized("User is not active in this tenant")
	errNoProject  = domain.NotFound("Project not found")
	errNoUser     = domain.NotFound("User not found")
	errNoTenant   = domain.NotFound("Tenant not found")
	errSuspended  = domain.Unauthorized("Tenant is not active")
)

// Evaluator resolves per-project roles. Projects are always loaded inside the
// actor's tenant, so a project from another tenant reads as not found.
type Evaluator struct {
	Repo repo.Repo
}

// Role loads the project and returns the actor's role on it. Members whose
// user or tenant is no longer active are rejected.
func (e Evaluator) Role(ctx context.Context, tx *sql.Tx, actor domain.Actor, projectID string) (domain.Project, string, error) {
	p, err := e.Repo.GetProject(ctx, tx, actor.TenantID, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return p, domain.RoleNone, errNoProject
		}
		return p, domain.RoleNone, err
	}
	role := domain.MemberRole(p, actor.UserID)
	if role == domain.RoleNone {
		return p, role, nil
	}
	// Membership outlives deactivation, so every project gate rechecks the user.
	if _, err := e.ActiveUser(ctx, tx, actor); err != nil {
		if errors.Is(err, errNoUser) {
			return p, domain.RoleNone, nil
		}
		return p, domain.RoleNone, err
	}
	return p, role, nil
}

func (e Evaluator) RequireMember(ctx context.Context, tx *sql.Tx, actor domain.Actor, projectID string) (domain.Project, error) {
	p, role, err := e.Role(ctx, tx, actor, projectID)
	if err != nil {
		return p, err
	}
	if role == domain.RoleNone {
		return p, errNoAccess
	}
	return p, nil
}

func (e Evaluator) RequireManager(ctx context.Context, tx *sql.Tx, actor domain.Actor, projectID string) (domain.Project, error) {
	p, role, err := e.Role(ctx, tx, actor, projectID)
	if err != nil {
		return p, err
	}
	switch role {
	case domain.RoleManager:
		return p, nil
	case domain.RoleNone:
		return p, errNoAccess
	default:
		return p, errNotManager
	}
}

func (e Evaluator) RequireOwner(ctx context.Context, tx *sql.Tx, actor domain.Actor, projectID string) (domain.Project, error) {
	p, role, err := e.Role(ctx, tx, actor, projectID)
	if err != nil {
		return p, err
	}
	if role == domain.RoleNone {
		return p, errNoAccess
	}
	if p.OwnerID != actor.UserID {
		return p, errNotOwner
	}
	return p, nil
}

// ActiveUser returns the actor's user record when the actor and its tenant are active.
func (e Evaluator) ActiveUser(ctx context.Context, tx *sql.Tx, actor domain.Actor) (domain.User, error) {
	t, err := e.Repo.GetTenant(ctx, tx, actor.TenantID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, errNoTenant
		}
		return domain.User{}, err
	}
	if !t.IsActive {
		return domain.User{}, errSuspended
	}
	u, err := e.Repo.GetUser(ctx, tx, actor.TenantID, actor.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return u, errNoUser
		}
		return u, err
	}
	if !u.IsActive {
		return u, errInactive
	}
	return u, nil
}
