package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"

	"taskflow/internal/domain"
	"taskflow/internal/repo"
)

const apiKeyPrefix = "tf_"

// CreateAPIKey issues a key for an active user. The plain token is returned
// once; only its SHA-256 digest is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actor domain.Actor, name string) (domain.APIKey, string, error) {
	if _, err := e.Auth.ActiveUser(ctx, nil, actor); err != nil {
		return domain.APIKey{}, "", err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	token := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		TenantID:  actor.TenantID,
		UserID:    actor.UserID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(token),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, token, nil
}

// ResolveAPIKey maps a presented token to the actor that owns it.
func (e Engine) ResolveAPIKey(ctx context.Context, token string) (domain.Actor, error) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return domain.Actor{}, domain.Unauthorized("Invalid API key")
	}
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Actor{}, domain.Unauthorized("Invalid API key")
		}
		return domain.Actor{}, err
	}
	actor := domain.Actor{UserID: key.UserID, TenantID: key.TenantID}
	if _, err := e.Auth.ActiveUser(ctx, nil, actor); err != nil {
		return domain.Actor{}, err
	}
	return actor, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actor domain.Actor) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actor.TenantID, actor.UserID)
}

func (e Engine) DeleteAPIKey(ctx context.Context, actor domain.Actor, id string) error {
	return notFound(e.Repo.DeleteAPIKey(ctx, actor.TenantID, id), "API key not found")
}
