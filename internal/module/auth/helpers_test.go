package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/jwt"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/simp-lee/hive/internal/config"
	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/module/user"
)

const (
	testSecret   = "auth-test-secret-0123456789-abcdef"
	testPassword = "Str0ng!Pass"
	testCode     = "123456"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeJWT is an in-memory jwt.Service driven by a settable clock.
type fakeJWT struct {
	mu      sync.Mutex
	now     func() time.Time
	seq     int
	tokens  map[string]*jwt.Token
	revoked map[string]bool
	genErr  error
	closed  bool
}

func newFakeJWT(now func() time.Time) *fakeJWT {
	return &fakeJWT{now: now, tokens: make(map[string]*jwt.Token), revoked: make(map[string]bool)}
}

func (f *fakeJWT) GenerateToken(userID string, _ []string, expiry time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return "", f.genErr
	}
	f.seq++
	tok := fmt.Sprintf("token-%d", f.seq)
	f.tokens[tok] = &jwt.Token{UserID: userID, ExpiresAt: f.now().Add(expiry)}
	return tok, nil
}

func (f *fakeJWT) ParseToken(token string) (*jwt.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, errors.New("token is malformed")
	}
	c := *t
	return &c, nil
}

func (f *fakeJWT) ValidateToken(token string) (*jwt.Token, error) {
	t, err := f.ParseToken(token)
	if err != nil {
		return nil, err
	}
	if !f.now().Before(t.ExpiresAt) {
		return nil, errors.New("token is expired")
	}
	if f.IsTokenRevoked(token) {
		return nil, errors.New("token has been revoked")
	}
	return t, nil
}

func (f *fakeJWT) ValidateAndParse(token string) (*jwt.Token, error) { return f.ValidateToken(token) }

func (f *fakeJWT) RefreshToken(token string) (string, error) {
	return f.RefreshTokenExtend(token, time.Hour)
}

func (f *fakeJWT) RefreshTokenExtend(token string, expiry time.Duration) (string, error) {
	t, err := f.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return f.GenerateToken(t.UserID, nil, expiry)
}

func (f *fakeJWT) RevokeToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[token] = true
	return nil
}

func (f *fakeJWT) IsTokenRevoked(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[token]
}

func (f *fakeJWT) RevokeAllUserTokens(userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, t := range f.tokens {
		if t.UserID == userID {
			f.revoked[tok] = true
		}
	}
	return nil
}

func (f *fakeJWT) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// captureMailer records sent messages. A non-nil err fails every send.
type captureMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(context.Background(), db))
	return db
}

type fixture struct {
	svc    *authService
	users  domain.UserRepository
	tokens *TokenService
	codes  *MemoryCodeStore
	mailer *captureMailer
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clk := newClock()
	tokens, err := NewTokenServiceWith(newFakeJWT(clk.Now), time.Hour)
	require.NoError(t, err)

	f := &fixture{
		users:  user.NewUserRepository(db),
		tokens: tokens,
		codes:  NewMemoryCodeStore(clk.Now),
		mailer: &captureMailer{},
		clock:  clk,
	}
	svc := NewService(db, f.users, tokens, f.codes, f.mailer, quietLogger(), Config{
		Verification: CodePolicy{TTL: 15 * time.Minute, MaxAttempts: 3},
		Reset:        CodePolicy{TTL: 30 * time.Minute, MaxAttempts: 3},
		BcryptCost:   bcrypt.MinCost,
	})
	f.svc = svc.(*authService)
	f.svc.now = clk.Now
	f.svc.newCode = func() (string, error) { return testCode, nil }
	return f
}

// register signs up an active user with testPassword.
func (f *fixture) register(t *testing.T, email string) *domain.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: testPassword, FirstName: "Test"})
	require.NoError(t, err)
	return u
}
