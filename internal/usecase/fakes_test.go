package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/infra/security"
	"github.com/arklim/octopis-auth/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeRevocationStore struct {
	mu      sync.Mutex
	records map[string]domain.RefreshRecord
	reads   int
	writes  int
	findErr error
}

func newFakeRevocationStore() *fakeRevocationStore {
	return &fakeRevocationStore{records: make(map[string]domain.RefreshRecord)}
}

func (s *fakeRevocationStore) FindRevocation(_ context.Context, token string) (*domain.RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.findErr != nil {
		return nil, s.findErr
	}
	record, ok := s.records[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &record, nil
}

func (s *fakeRevocationStore) InsertRevocation(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, exists := s.records[token]; exists {
		return repository.ErrConflict
	}
	s.records[token] = domain.RefreshRecord{
		ID:        int64(len(s.records) + 1),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (s *fakeRevocationStore) MarkRevoked(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	record, ok := s.records[token]
	if !ok {
		return repository.ErrNotFound
	}
	record.Revoked = true
	s.records[token] = record
	return nil
}

func (s *fakeRevocationStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes
}

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[int64]domain.User
	nextID  int64
	getErr  error
	created int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]domain.User), nextID: 1}
}

func (r *fakeUserRepo) Create(_ context.Context, user domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return nil, repository.ErrConflict
		}
	}
	user.ID = r.nextID
	user.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.nextID++
	r.created++
	r.users[user.ID] = user
	return &user, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range r.users {
		if user.Email == email {
			copy := user
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) FindBySubject(ctx context.Context, subject string) (*domain.User, error) {
	id, ok := domain.ParseSubject(subject)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// plainHasher keeps tests fast; argon2 is covered in the security package.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "plain$"+password, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) record(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind)
	return p.err
}

func (p *recordingPublisher) PublishUserRegistered(context.Context, domain.UserRegisteredEvent) error {
	return p.record("user.registered")
}

func (p *recordingPublisher) PublishUserLoggedIn(context.Context, domain.UserLoggedInEvent) error {
	return p.record("user.logged_in")
}

func (p *recordingPublisher) PublishTokenRefreshed(context.Context, domain.TokenRefreshedEvent) error {
	return p.record("token.refreshed")
}

func (p *recordingPublisher) PublishTokenRevoked(context.Context, domain.TokenRevokedEvent) error {
	return p.record("token.revoked")
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type tokenFixture struct {
	clock   *testClock
	store   *fakeRevocationStore
	users   *fakeUserRepo
	service *TokenService
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	signer, err := security.NewJWTManager("usecase-test-secret", "HS256")
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	clock := newTestClock()
	store := newFakeRevocationStore()
	users := newFakeUserRepo()
	service := NewTokenService(signer, store, users, TokenSettings{}, zaptest.NewLogger(t)).WithClock(clock.Now)

	return &tokenFixture{clock: clock, store: store, users: users, service: service}
}
