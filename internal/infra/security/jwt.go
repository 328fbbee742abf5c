package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/octopis-auth/internal/core/domain"
)

var (
	// ErrMissingSigningKey is returned when no HMAC secret is configured.
	ErrMissingSigningKey = errors.New("jwt: signing key not configured")
	// ErrUnsupportedAlgorithm is returned for algorithms other than HS256/HS384/HS512.
	ErrUnsupportedAlgorithm = errors.New("jwt: unsupported signing algorithm")
	// ErrTokenInvalid covers every reason a presented token cannot be trusted.
	ErrTokenInvalid = errors.New("jwt: token invalid")
)

// tokenClaims is the wire shape of issued tokens.
type tokenClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies HMAC bearer tokens with a single configured algorithm.
type JWTManager struct {
	secret []byte
	method jwt.SigningMethod
}

// NewJWTManager validates the secret and algorithm and returns a manager.
func NewJWTManager(secret, algorithm string) (*JWTManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSigningKey
	}

	var method jwt.SigningMethod
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}

	return &JWTManager{secret: []byte(secret), method: method}, nil
}

// Algorithm returns the configured JWS algorithm name.
func (m *JWTManager) Algorithm() string {
	return m.method.Alg()
}

// Sign produces a compact JWT carrying sub, type, iat, exp and a random jti.
// The jti keeps two tokens minted in the same second for the same subject distinct.
func (m *JWTManager) Sign(subject string, kind domain.TokenKind, issuedAt, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		Type: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, algorithm and expiry against now and returns the
// trusted claims. No clock-skew leeway is applied.
func (m *JWTManager) Parse(raw string, now time.Time) (domain.TokenClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.TokenClaims{}, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims tokenClaims
	token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return domain.TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return domain.TokenClaims{}, ErrTokenInvalid
	}

	kind := domain.TokenKind(claims.Type)
	if !kind.Valid() {
		return domain.TokenClaims{}, fmt.Errorf("%w: unknown token type %q", ErrTokenInvalid, claims.Type)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.TokenClaims{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	out := domain.TokenClaims{
		Subject:   claims.Subject,
		Kind:      kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
