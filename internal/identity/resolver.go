// Package identity resolves caller accounts for authorization checks.
package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/repository"
	"github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// Resolver looks up user accounts by id or username.
type Resolver struct {
	users repository.UserRepository
}

// NewResolver instantiates a resolver over the user store.
func NewResolver(users repository.UserRepository) *Resolver {
	return &Resolver{users: users}
}

// ByID resolves an account by id. Missing or deactivated accounts resolve
// to NotFound; callers treat the result as the authenticated principal.
func (r *Resolver) ByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	return r.resolve(r.users.GetByID(ctx, id))
}

// ByUsername resolves an account by username.
func (r *Resolver) ByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return r.resolve(r.users.GetByUsername(ctx, username))
}

func (r *Resolver) resolve(user *domain.UserAccount, err error) (*domain.UserAccount, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorutil.NewNotFound("user account", nil)
		}
		return nil, err
	}
	if !user.Active {
		return nil, errorutil.NewNotFound("user account", nil)
	}
	return user, nil
}
