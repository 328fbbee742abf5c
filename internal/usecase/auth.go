package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/core/port"
	"github.com/arklim/octopis-auth/internal/infra/logger"
	"github.com/arklim/octopis-auth/internal/repository"
)

// RegisterInput carries a validated registration request.
type RegisterInput struct {
	Email    string
	Password string
	Username *string
}

// LoginInput carries a login request. ClientIP is used for auditing only.
type LoginInput struct {
	Email    string
	Password string
	ClientIP string
}

// AuthService coordinates the register, login, refresh, logout and me flows.
type AuthService struct {
	users       port.UserRepository
	hasher      port.PasswordHasher
	tokens      *TokenService
	revocations port.RevocationStore
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	tokens *TokenService,
	revocations port.RevocationStore,
	events port.EventPublisher,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       users,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		events:      events,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for event timestamps.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Register creates an active user. A taken email yields ErrEmailTaken.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	username := in.Username
	if username != nil {
		trimmed := strings.TrimSpace(*username)
		if trimmed == "" {
			username = nil
		} else {
			username = &trimmed
		}
	}

	user, err := s.users.Create(ctx, domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.publish(ctx, "user.registered", func() error {
		return s.events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.Subject(),
			Email:        user.Email,
			Username:     user.Username,
			RegisteredAt: user.CreatedAt,
		})
	})

	s.log(ctx).Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// Login checks the password and issues an access/refresh pair, recording the
// refresh token in the revocation ledger. Unknown email, wrong password and
// inactive account are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidCredential
		}
		return domain.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.log(ctx).Warn("stored password hash unreadable", zap.Int64("user_id", user.ID), zap.Error(err))
		return domain.TokenPair{}, ErrInvalidCredential
	}
	if !ok || !user.IsActive {
		return domain.TokenPair{}, ErrInvalidCredential
	}

	subject := user.Subject()
	access, err := s.tokens.IssueAccessToken(subject, 0)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, expiresAt, err := s.tokens.IssueRefreshToken(subject, 0)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := s.revocations.InsertRevocation(ctx, user.ID, refresh, expiresAt); err != nil {
		return domain.TokenPair{}, fmt.Errorf("record refresh token: %w", err)
	}

	s.publish(ctx, "user.logged_in", func() error {
		return s.events.PublishUserLoggedIn(ctx, domain.UserLoggedInEvent{
			EventID:          uuid.NewString(),
			UserID:           subject,
			ClientIP:         in.ClientIP,
			LoggedInAt:       s.now(),
			RefreshExpiresAt: expiresAt,
		})
	})

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh returns a new access token and the unchanged refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	pair, subject, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.publish(ctx, "token.refreshed", func() error {
		return s.events.PublishTokenRefreshed(ctx, domain.TokenRefreshedEvent{
			EventID:     uuid.NewString(),
			UserID:      subject,
			RefreshedAt: s.now(),
		})
	})

	return pair, nil
}

// Logout revokes the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	subject, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}

	s.publish(ctx, "token.revoked", func() error {
		return s.events.PublishTokenRevoked(ctx, domain.TokenRevokedEvent{
			EventID:   uuid.NewString(),
			UserID:    subject,
			RevokedAt: s.now(),
			Reason:    "logout",
		})
	})
	return nil
}

// Me returns the public view of the principal behind an access token.
func (s *AuthService) Me(ctx context.Context, accessToken string) (*domain.User, error) {
	user, err := s.tokens.ResolvePrincipal(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	sanitized := user.Sanitized()
	return &sanitized, nil
}

// publish delivers an event without failing the request it belongs to.
func (s *AuthService) publish(ctx context.Context, eventType string, send func() error) {
	if s.events == nil {
		return
	}
	if err := send(); err != nil {
		s.log(ctx).Warn("publish event failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (s *AuthService) log(ctx context.Context) *zap.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}
