package domain

import "time"

// UserRegisteredEvent represents the payload for octopis.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	Username     *string
	RegisteredAt time.Time
}

// UserLoggedInEvent represents the payload for octopis.user.logged_in messages.
type UserLoggedInEvent struct {
	EventID          string
	UserID           string
	ClientIP         string
	LoggedInAt       time.Time
	RefreshExpiresAt time.Time
}

// TokenRefreshedEvent represents the payload for octopis.token.refreshed messages.
type TokenRefreshedEvent struct {
	EventID     string
	UserID      string
	RefreshedAt time.Time
}

// TokenRevokedEvent represents the payload for octopis.token.revoked messages.
type TokenRevokedEvent struct {
	EventID   string
	UserID    string
	RevokedAt time.Time
	Reason    string
}
