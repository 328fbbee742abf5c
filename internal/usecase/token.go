package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/core/port"
	"github.com/arklim/octopis-auth/internal/infra/telemetry"
	"github.com/arklim/octopis-auth/internal/repository"
)

const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenSettings holds the default lifetimes applied when callers pass a zero ttl.
type TokenSettings struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// TokenService issues, verifies, refreshes and revokes bearer credentials.
type TokenService struct {
	signer      port.TokenSigner
	revocations port.RevocationStore
	principals  port.PrincipalFinder
	settings    TokenSettings
	metrics     *telemetry.AuthMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(
	signer port.TokenSigner,
	revocations port.RevocationStore,
	principals port.PrincipalFinder,
	settings TokenSettings,
	logger *zap.Logger,
) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.AccessTokenTTL <= 0 {
		settings.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if settings.RefreshTokenTTL <= 0 {
		settings.RefreshTokenTTL = DefaultRefreshTokenTTL
	}

	return &TokenService{
		signer:      signer,
		revocations: revocations,
		principals:  principals,
		settings:    settings,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics enables operation counters.
func (s *TokenService) WithMetrics(metrics *telemetry.AuthMetrics) *TokenService {
	s.metrics = metrics
	return s
}

// IssueAccessToken signs an access token for subject. A zero ttl selects the
// configured default; a negative ttl yields an already expired token.
func (s *TokenService) IssueAccessToken(subject string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = s.settings.AccessTokenTTL
	}
	now := s.now()
	token, err := s.signer.Sign(subject, domain.TokenKindAccess, now, now.Add(ttl))
	s.metrics.ObserveToken("issue_access", err)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return token, nil
}

// IssueRefreshToken signs a refresh token and returns it with its absolute expiry,
// which the login flow persists in the revocation ledger.
func (s *TokenService) IssueRefreshToken(subject string, ttl time.Duration) (string, time.Time, error) {
	if ttl == 0 {
		ttl = s.settings.RefreshTokenTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	token, err := s.signer.Sign(subject, domain.TokenKindRefresh, now, expiresAt)
	s.metrics.ObserveToken("issue_refresh", err)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify returns the claims of a token that checks out now. Every failure is
// reported as ErrInvalidCredential.
func (s *TokenService) Verify(token string) (domain.TokenClaims, error) {
	claims, err := s.signer.Parse(token, s.now())
	if err != nil {
		s.logger.Debug("token verification failed", zap.Error(err))
		return domain.TokenClaims{}, ErrInvalidCredential
	}
	return claims, nil
}

func (s *TokenService) verifyKind(token string, kind domain.TokenKind) (domain.TokenClaims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return domain.TokenClaims{}, err
	}
	if claims.Kind != kind {
		return domain.TokenClaims{}, ErrInvalidCredential
	}
	return claims, nil
}

// Refresh trades a live refresh token for a new access token. The refresh token
// is returned unchanged. The ledger is read once and never written.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, string, error) {
	pair, subject, err := s.refresh(ctx, refreshToken)
	s.metrics.ObserveToken("refresh", err)
	return pair, subject, err
}

func (s *TokenService) refresh(ctx context.Context, refreshToken string) (domain.TokenPair, string, error) {
	claims, err := s.verifyKind(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return domain.TokenPair{}, "", err
	}

	record, err := s.revocations.FindRevocation(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, "", ErrInvalidCredential
		}
		return domain.TokenPair{}, "", fmt.Errorf("lookup refresh token: %w", err)
	}
	if !record.IsActive(s.now()) {
		return domain.TokenPair{}, "", ErrInvalidCredential
	}

	access, err := s.IssueAccessToken(claims.Subject, 0)
	if err != nil {
		return domain.TokenPair{}, "", err
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refreshToken}, claims.Subject, nil
}

// ResolvePrincipal verifies an access token and loads the user it names.
func (s *TokenService) ResolvePrincipal(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.verifyKind(accessToken, domain.TokenKindAccess)
	if err != nil {
		return nil, err
	}

	user, err := s.principals.FindBySubject(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	if !user.IsActive {
		return nil, ErrPrincipalNotFound
	}
	return user, nil
}

// Revoke marks the ledger record of a valid refresh token as revoked and
// returns the token subject. Revoking twice succeeds.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) (string, error) {
	subject, err := s.revoke(ctx, refreshToken)
	s.metrics.ObserveToken("revoke", err)
	return subject, err
}

func (s *TokenService) revoke(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.verifyKind(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return "", err
	}

	if err := s.revocations.MarkRevoked(ctx, refreshToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredential
		}
		return "", fmt.Errorf("revoke refresh token: %w", err)
	}
	return claims.Subject, nil
}
