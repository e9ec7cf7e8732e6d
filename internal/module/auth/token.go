package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/simp-lee/jwt"

	"github.com/simp-lee/hive/internal/domain"
)

// TokenService issues and parses access tokens whose user id is the
// domain user id. Signing, expiry and revocation are handled by jwt.Service.
type TokenService struct {
	jwt    jwt.Service
	expiry time.Duration
}

// NewTokenService creates a TokenService backed by an HS256 jwt.Service.
func NewTokenService(secret string, expiry time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret is empty")
	}
	svc, err := jwt.New(secret)
	if err != nil {
		return nil, fmt.Errorf("auth: create jwt service: %w", err)
	}
	ts, err := NewTokenServiceWith(svc, expiry)
	if err != nil {
		svc.Close()
		return nil, err
	}
	return ts, nil
}

// NewTokenServiceWith wraps an existing jwt.Service.
func NewTokenServiceWith(svc jwt.Service, expiry time.Duration) (*TokenService, error) {
	if svc == nil {
		return nil, errors.New("auth: jwt service is nil")
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("auth: token expiry must be positive, got %s", expiry)
	}
	return &TokenService{jwt: svc, expiry: expiry}, nil
}

// Issue signs a token for user. Roles are not embedded; they are loaded
// from the database on every request.
func (s *TokenService) Issue(user *domain.User) (*TokenResponse, error) {
	signed, err := s.jwt.GenerateToken(strconv.FormatUint(uint64(user.ID), 10), nil, s.expiry)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	parsed, err := s.jwt.ParseToken(signed)
	if err != nil {
		return nil, fmt.Errorf("parse issued token: %w", err)
	}
	return &TokenResponse{AccessToken: signed, TokenType: "Bearer", ExpiresAt: parsed.ExpiresAt.UTC()}, nil
}

// ParseToken verifies token, including revocation, and returns its user id.
func (s *TokenService) ParseToken(token string) (uint, error) {
	parsed, err := s.jwt.ValidateAndParse(token)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(parsed.UserID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid token user id %q", parsed.UserID)
	}
	return uint(id), nil
}

// RevokeAll invalidates every token issued to the user so far.
func (s *TokenService) RevokeAll(userID uint) error {
	if err := s.jwt.RevokeAllUserTokens(strconv.FormatUint(uint64(userID), 10)); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	return nil
}

// Close stops the background work of the underlying jwt.Service.
func (s *TokenService) Close() {
	s.jwt.Close()
}
