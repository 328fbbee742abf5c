package domain

import "time"

// TokenKind distinguishes short-lived access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether the kind is one the service issues.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// TokenClaims is the trusted view of a verified bearer token.
type TokenClaims struct {
	Subject   string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshRecord is the persisted revocation entry for an issued refresh token.
// Token is the exact signed string handed to the client and is unique in the store.
type RefreshRecord struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	Revoked   bool
}

// IsExpired reports whether the record has elapsed its validity window.
func (r RefreshRecord) IsExpired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}

// IsActive returns true when the record may still back a refresh.
func (r RefreshRecord) IsActive(at time.Time) bool {
	return !r.Revoked && !r.IsExpired(at)
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
