package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simp-lee/hive/internal/domain"
)

func TestNewTokenService_Invalid(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.Error(t, err)

	_, err = NewTokenServiceWith(nil, time.Hour)
	assert.Error(t, err)

	_, err = NewTokenServiceWith(newFakeJWT(time.Now), 0)
	assert.Error(t, err)
}

func TestTokenService_IssueAndParse(t *testing.T) {
	clk := newClock()
	svc, err := NewTokenServiceWith(newFakeJWT(clk.Now), time.Hour)
	require.NoError(t, err)

	tok, err := svc.Issue(&domain.User{BaseModel: domain.BaseModel{ID: 42}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, clk.Now().Add(time.Hour), tok.ExpiresAt)

	id, err := svc.ParseToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestTokenService_IssueError(t *testing.T) {
	fake := newFakeJWT(time.Now)
	fake.genErr = errors.New("signer broken")
	svc, err := NewTokenServiceWith(fake, time.Hour)
	require.NoError(t, err)

	_, err = svc.Issue(&domain.User{BaseModel: domain.BaseModel{ID: 1}})
	assert.ErrorIs(t, err, fake.genErr)
}

func TestTokenService_Rejects(t *testing.T) {
	clk := newClock()
	fake := newFakeJWT(clk.Now)
	svc, err := NewTokenServiceWith(fake, time.Minute)
	require.NoError(t, err)

	mint := func(userID string) string {
		tok, err := fake.GenerateToken(userID, nil, time.Minute)
		require.NoError(t, err)
		return tok
	}
	revoked := mint("7")
	require.NoError(t, fake.RevokeToken(revoked))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"revoked", revoked},
		{"bad user id", mint("seven")},
		{"zero user id", mint("0")},
		{"negative user id", mint("-1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ParseToken(tt.token)
			assert.Error(t, err)
		})
	}

	t.Run("expired", func(t *testing.T) {
		tok := mint("3")
		clk.Advance(2 * time.Minute)
		_, err := svc.ParseToken(tok)
		assert.Error(t, err)
	})
}

func TestTokenService_RevokeAll(t *testing.T) {
	svc, err := NewTokenServiceWith(newFakeJWT(newClock().Now), time.Hour)
	require.NoError(t, err)

	issue := func(id uint) string {
		tok, err := svc.Issue(&domain.User{BaseModel: domain.BaseModel{ID: id}})
		require.NoError(t, err)
		return tok.AccessToken
	}
	first, second, bystander := issue(7), issue(7), issue(8)

	require.NoError(t, svc.RevokeAll(7))
	for _, tok := range []string{first, second} {
		_, err := svc.ParseToken(tok)
		assert.Error(t, err)
	}
	id, err := svc.ParseToken(bystander)
	require.NoError(t, err)
	assert.Equal(t, uint(8), id)
}

func TestTokenService_Close(t *testing.T) {
	fake := newFakeJWT(time.Now)
	svc, err := NewTokenServiceWith(fake, time.Hour)
	require.NoError(t, err)
	svc.Close()
	assert.True(t, fake.closed)
}

// TestTokenService_SignedTokens runs against the HS256 implementation.
func TestTokenService_SignedTokens(t *testing.T) {
	svc, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	other, err := NewTokenService("another-secret-0123456789-abcdefgh", time.Hour)
	require.NoError(t, err)
	t.Cleanup(other.Close)

	u := &domain.User{BaseModel: domain.BaseModel{ID: 5}}
	tok, err := svc.Issue(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, time.Minute)

	id, err := svc.ParseToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint(5), id)

	_, err = other.ParseToken(tok.AccessToken)
	assert.Error(t, err, "wrong secret")

	require.NoError(t, svc.RevokeAll(5))
	_, err = svc.ParseToken(tok.AccessToken)
	assert.Error(t, err, "revoked")
}
