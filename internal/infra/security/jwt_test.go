package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/octopis-auth/internal/core/domain"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	mgr, err := NewJWTManager("unit-test-secret", "HS256")
	if err != nil {
		t.Fatalf("NewJWTManager returned error: %v", err)
	}
	return mgr
}

func TestNewJWTManagerValidatesInput(t *testing.T) {
	if _, err := NewJWTManager("  ", "HS256"); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected ErrMissingSigningKey, got %v", err)
	}
	if _, err := NewJWTManager("secret", "RS256"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
	mgr, err := NewJWTManager("secret", "hs512")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mgr.Algorithm() != "HS512" {
		t.Fatalf("expected HS512, got %s", mgr.Algorithm())
	}
}

func TestSignAndParseRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	raw, err := mgr.Sign("42", domain.TokenKindRefresh, now, now.Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	claims, err := mgr.Parse(raw, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "42" || claims.Kind != domain.TokenKindRefresh {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestSignProducesDistinctTokens(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	a, _ := mgr.Sign("1", domain.TokenKindRefresh, now, now.Add(time.Hour))
	b, _ := mgr.Sign("1", domain.TokenKindRefresh, now, now.Add(time.Hour))
	if a == b {
		t.Fatalf("expected distinct tokens for the same subject and instant")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	raw, err := mgr.Sign("1", domain.TokenKindAccess, now, now.Add(-time.Second))
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if _, err := mgr.Parse(raw, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseRejectsForeignSecretAndAlgorithm(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	other, _ := NewJWTManager("another-secret", "HS256")
	foreign, _ := other.Sign("1", domain.TokenKindAccess, now, now.Add(time.Hour))
	if _, err := mgr.Parse(foreign, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected signature failure, got %v", err)
	}

	hs512, _ := NewJWTManager("unit-test-secret", "HS512")
	wrongAlg, _ := hs512.Sign("1", domain.TokenKindAccess, now, now.Add(time.Hour))
	if _, err := mgr.Parse(wrongAlg, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected algorithm mismatch failure, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "1", "type": "access", "exp": now.Add(time.Hour).Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}
	if _, err := mgr.Parse(unsigned, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}
}

func TestParseRejectsMalformedAndUntyped(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	for _, raw := range []string{"", "garbage", "a.b.c", strings.Repeat("x", 40)} {
		if _, err := mgr.Parse(raw, now); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", raw, err)
		}
	}

	untyped := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "exp": now.Add(time.Hour).Unix(),
	})
	raw, _ := untyped.SignedString([]byte("unit-test-secret"))
	if _, err := mgr.Parse(raw, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected missing type to be rejected, got %v", err)
	}

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "type": "access"})
	raw, _ = noExp.SignedString([]byte("unit-test-secret"))
	if _, err := mgr.Parse(raw, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected missing exp to be rejected, got %v", err)
	}
}
