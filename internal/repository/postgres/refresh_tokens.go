package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/core/port"
	"github.com/arklim/octopis-auth/internal/repository"
)

// RefreshTokenRepository stores one revocation record per issued refresh token.
type RefreshTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRefreshTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewRefreshTokenRepository(exec pgExecutor) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// InsertRevocation records a freshly issued refresh token as active.
func (r *RefreshTokenRepository) InsertRevocation(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	stmt, args, err := r.builder.Insert("refresh_tokens").
		Columns("user_id", "token", "expires_at", "revoked").
		Values(userID, token, expiresAt.UTC(), false).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", translateError(err))
	}
	return nil
}

// FindRevocation looks up the record for the exact token string.
func (r *RefreshTokenRepository) FindRevocation(ctx context.Context, token string) (*domain.RefreshRecord, error) {
	stmt, args, err := r.builder.Select("id", "user_id", "token", "expires_at", "revoked").
		From("refresh_tokens").
		Where(squirrel.Eq{"token": token}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	var record domain.RefreshRecord
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&record.ID,
		&record.UserID,
		&record.Token,
		&record.ExpiresAt,
		&record.Revoked,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select refresh token: %w", err)
	}

	return &record, nil
}

// MarkRevoked flips the revoked flag. Revoking an already revoked token succeeds.
func (r *RefreshTokenRepository) MarkRevoked(ctx context.Context, token string) error {
	stmt, args, err := r.builder.Update("refresh_tokens").
		Set("revoked", true).
		Where(squirrel.Eq{"token": token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.RevocationStore = (*RefreshTokenRepository)(nil)
