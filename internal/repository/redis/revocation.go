package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/core/port"
	"github.com/arklim/octopis-auth/internal/repository"
)

const defaultRevocationPrefix = "refresh"

type refreshEntry struct {
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// RevocationRepository keeps refresh-token revocation records in Redis.
// Keys are derived from a SHA-256 of the token and expire with the token.
type RevocationRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewRevocationRepository wires a Redis client into a revocation repository.
func NewRevocationRepository(client *red.Client, keyPrefix string) *RevocationRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}

	return &RevocationRepository{client: client, prefix: prefix, now: time.Now}
}

// WithClock overrides the clock used to derive key TTLs.
func (r *RevocationRepository) WithClock(now func() time.Time) *RevocationRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// InsertRevocation stores an active record. An existing record for the same
// token yields repository.ErrConflict.
func (r *RevocationRepository) InsertRevocation(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	key := r.key(token)
	if key == "" {
		return errors.New("token must not be empty")
	}

	payload, err := json.Marshal(refreshEntry{UserID: userID, Token: token, ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return fmt.Errorf("encode refresh entry: %w", err)
	}

	ttl := expiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := r.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx refresh token: %w", err)
	}
	if !ok {
		return repository.ErrConflict
	}
	return nil
}

// FindRevocation returns the record for token or repository.ErrNotFound.
func (r *RevocationRepository) FindRevocation(ctx context.Context, token string) (*domain.RefreshRecord, error) {
	entry, err := r.load(ctx, token)
	if err != nil {
		return nil, err
	}

	return &domain.RefreshRecord{
		UserID:    entry.UserID,
		Token:     entry.Token,
		ExpiresAt: entry.ExpiresAt,
		Revoked:   entry.Revoked,
	}, nil
}

// MarkRevoked flips the revoked flag while keeping the key's remaining TTL.
func (r *RevocationRepository) MarkRevoked(ctx context.Context, token string) error {
	entry, err := r.load(ctx, token)
	if err != nil {
		return err
	}
	if entry.Revoked {
		return nil
	}
	entry.Revoked = true

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode refresh entry: %w", err)
	}

	if err := r.client.SetArgs(ctx, r.key(token), payload, red.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil {
		if errors.Is(err, red.Nil) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("redis set revoked refresh token: %w", err)
	}
	return nil
}

func (r *RevocationRepository) load(ctx context.Context, token string) (refreshEntry, error) {
	key := r.key(token)
	if key == "" {
		return refreshEntry{}, repository.ErrNotFound
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return refreshEntry{}, repository.ErrNotFound
		}
		return refreshEntry{}, fmt.Errorf("redis get refresh token: %w", err)
	}

	var entry refreshEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return refreshEntry{}, fmt.Errorf("decode refresh entry: %w", err)
	}
	if entry.Token != token {
		return refreshEntry{}, repository.ErrNotFound
	}
	return entry, nil
}

func (r *RevocationRepository) key(token string) string {
	if strings.TrimSpace(token) == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%s:%s", r.prefix, hex.EncodeToString(sum[:]))
}

var _ port.RevocationStore = (*RevocationRepository)(nil)
