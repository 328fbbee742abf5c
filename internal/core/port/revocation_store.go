package port

import (
	"context"
	"time"

	"github.com/arklim/octopis-auth/internal/core/domain"
)

// RevocationStore persists the refresh-token revocation ledger keyed by the exact token value.
type RevocationStore interface {
	// FindRevocation returns repository.ErrNotFound when no record exists for the token.
	FindRevocation(ctx context.Context, token string) (*domain.RefreshRecord, error)
	// InsertRevocation returns repository.ErrConflict when the token is already recorded.
	InsertRevocation(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	// MarkRevoked flags the record as revoked. Returns repository.ErrNotFound when absent.
	MarkRevoked(ctx context.Context, token string) error
}
