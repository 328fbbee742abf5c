package port

import (
	"context"

	"github.com/arklim/octopis-auth/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// PrincipalFinder resolves a token subject into a user.
type PrincipalFinder interface {
	FindBySubject(ctx context.Context, subject string) (*domain.User, error)
}
