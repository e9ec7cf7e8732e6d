package domain

import "context"

// Principal is the acting identity of a request.
type Principal interface {
	PrincipalID() uint
	IsAuthenticated() bool
	IsActive() bool
	// HasRole reports membership of the named role.
	HasRole(name string) bool
}

type anonymous struct{}

func (anonymous) PrincipalID() uint     { return 0 }
func (anonymous) IsAuthenticated() bool { return false }
func (anonymous) IsActive() bool        { return false }
func (anonymous) HasRole(string) bool   { return false }
func (anonymous) String() string        { return "anonymous" }

// Anonymous is the principal of unauthenticated requests.
var Anonymous Principal = anonymous{}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	if ctx == nil {
		return Anonymous
	}
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p != nil {
		return p
	}
	return Anonymous
}

// Authentication failure codes.
const (
	CodeInvalidToken       = "invalid_token"
	CodeAccountDeactivated = "account_deactivated"
	CodeInvalidCredentials = "invalid_credentials"
)

// InvalidToken reports a missing, malformed or expired bearer token.
func InvalidToken() *AppError {
	return Unauthenticated(CodeInvalidToken, "The access token is invalid or has expired.")
}

// AccountDeactivated reports a principal whose account is disabled.
func AccountDeactivated() *AppError {
	return Unauthenticated(CodeAccountDeactivated, "Your account has been deactivated.")
}

// InvalidCredentials reports a failed email and password check.
func InvalidCredentials() *AppError {
	return Unauthenticated(CodeInvalidCredentials, "Invalid email or password.")
}
