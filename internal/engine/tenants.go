package engine

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"taskflow/internal/domain"
	"taskflow/internal/repo"
)

type TenantCreateOptions struct {
	ID   string
	Name string
	Plan string
}

func (e Engine) CreateTenant(ctx context.Context, opts TenantCreateOptions) (domain.Tenant, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Tenant{}, domain.Invalid("Tenant name is required")
	}
	plan := opts.Plan
	if plan == "" {
		plan = domain.PlanFree
	}
	if !validEnum([]string{domain.PlanFree, domain.PlanPro, domain.PlanEnterprise}, plan) {
		return domain.Tenant{}, domain.Invalid("Invalid plan: " + plan)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Tenant{
		ID:        id,
		Name:      name,
		Plan:      plan,
		IsActive:  true,
		MaxUsers:  e.Config.MaxUsers(plan),
		Settings:  domain.SettingsForPlan(plan),
		CreatedAt: e.timestamp(),
	}
	if _, err := e.Repo.GetTenant(ctx, nil, id); err == nil {
		return domain.Tenant{}, domain.ConflictError("Tenant already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Tenant{}, err
	}
	if err := e.Repo.InsertTenant(ctx, nil, t); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

func (e Engine) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	t, err := e.Repo.GetTenant(ctx, nil, id)
	return t, notFound(err, "Tenant not found")
}

type UserCreateOptions struct {
	TenantID string
	ID       string
	Email    string
	Name     string
	Role     string
}

// AddUser registers a user under the tenant quota. The quota check and the
// counter bump happen in one conditional update.
func (e Engine) AddUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return domain.User{}, domain.Invalid("A valid email is required")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.User{}, domain.Invalid("User name is required")
	}
	role := opts.Role
	if role == "" {
		role = "member"
	}
	if !validEnum(domain.UserRoles, role) {
		return domain.User{}, domain.Invalid("Invalid user role: " + role)
	}
	tenant, err := e.Repo.GetTenant(ctx, nil, opts.TenantID)
	if err != nil {
		return domain.User{}, notFound(err, "Tenant not found")
	}
	if !tenant.IsActive {
		return domain.User{}, domain.Unauthorized("Tenant is not active")
	}
	if !tenant.CanAddUsers(1) {
		return domain.User{}, domain.Invalid("Tenant user limit reached")
	}
	if _, err := e.Repo.GetUserByEmail(ctx, nil, tenant.ID, email); err == nil {
		return domain.User{}, domain.ConflictError("User with this email already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	u := domain.User{
		ID:        id,
		TenantID:  tenant.ID,
		Email:     email,
		Name:      name,
		Role:      role,
		IsActive:  true,
		CreatedAt: e.timestamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.IncrementTenantUsers(ctx, tx, tenant.ID)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.Invalid("Tenant user limit reached")
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.User{}, domain.ConflictError("User already exists")
		}
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// DeactivateUser blocks the user from acting and from being assigned. The
// tenant seat stays counted.
func (e Engine) DeactivateUser(ctx context.Context, tenantID, userID string) error {
	return notFound(e.Repo.SetUserActive(ctx, nil, tenantID, userID, false), "User not found")
}

func (e Engine) ListUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx, tenantID)
}
