package port

import (
	"time"

	"github.com/arklim/octopis-auth/internal/core/domain"
)

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// TokenSigner signs and verifies bearer tokens. Parse must reject every token
// whose signature, algorithm, structure or expiry does not check out at now.
type TokenSigner interface {
	Sign(subject string, kind domain.TokenKind, issuedAt, expiresAt time.Time) (string, error)
	Parse(raw string, now time.Time) (domain.TokenClaims, error)
}
