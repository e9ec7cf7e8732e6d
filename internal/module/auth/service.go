package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/simp-lee/hive/internal/domain"
	"github.com/simp-lee/hive/internal/pkg/validation"
)

// PermissionGetProfile is reported when a principal may not read its profile.
const PermissionGetProfile = "can_get_profile"

// CodeInvalidCode is returned for wrong, expired or exhausted codes.
const CodeInvalidCode = "invalid_code"

const (
	purposeVerification = "email_verification"
	purposeReset        = "password_reset"
	maxNameLength       = 150
)

// Service is the account use-case layer.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*TokenResponse, error)
	Profile(ctx context.Context, p domain.Principal) (*domain.User, error)
	UpdateProfile(ctx context.Context, p domain.Principal, in ProfileInput, opts ...validation.Option) (*domain.User, error)
	RequestEmailVerification(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, email, code string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, password string) error
}

// CodePolicy bounds the lifetime of one kind of one-time code.
type CodePolicy struct {
	TTL         time.Duration
	MaxAttempts int
}

// Config holds the runtime settings of the service.
type Config struct {
	Verification CodePolicy
	Reset        CodePolicy
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// RegisterInput carries a sign-up request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AsMap is the value source seen by the validation rules.
func (in RegisterInput) AsMap() map[string]any {
	return map[string]any{
		"email":      in.Email,
		"password":   in.Password,
		"first_name": in.FirstName,
		"last_name":  in.LastName,
	}
}

// ProfileInput carries a profile change. Nil fields are left unchanged.
type ProfileInput struct {
	FirstName *string
	LastName  *string
}

// AsMap is the value source seen by the validation rules.
func (in ProfileInput) AsMap() map[string]any {
	m := make(map[string]any, 2)
	if in.FirstName != nil {
		m["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		m["last_name"] = *in.LastName
	}
	return m
}

type authService struct {
	users  domain.UserRepository
	tokens *TokenService
	codes  CodeStore
	mailer Mailer
	log    *slog.Logger
	cfg    Config

	registerRules validation.Schema
	profileRules  validation.Schema
	passwordRules validation.Schema

	// dummyHash is compared on logins of unknown addresses so that they take
	// as long as a wrong password.
	dummyHash   []byte
	compareHash func(hash, password []byte) error

	now     func() time.Time
	newCode func() (string, error)
}

// NewService creates the account service. db backs the uniqueness rules of
// registration.
func NewService(db *gorm.DB, users domain.UserRepository, tokens *TokenService,
	codes CodeStore, mailer Mailer, log *slog.Logger, cfg Config) Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	password := []validation.Rule{
		validation.Required(), validation.Length(8, 72), validation.PasswordComplexity(),
	}
	names := []validation.Binding{
		validation.On("first_name", validation.Length(0, maxNameLength)),
		validation.On("last_name", validation.Length(0, maxNameLength)),
	}

	return &authService{
		users:  users,
		tokens: tokens,
		codes:  codes,
		mailer: mailer,
		log:    log,
		cfg:    cfg,
		registerRules: append(validation.Schema{
			validation.On("email", validation.Required(), validation.Email(),
				validation.ShouldNotExist(db, &domain.User{}, "email")),
			validation.On("password", password...),
		}, names...),
		profileRules:  validation.Schema(names),
		passwordRules: validation.Schema{validation.On("password", password...)},
		dummyHash:     dummyHash(cfg.BcryptCost),
		compareHash:   bcrypt.CompareHashAndPassword,
		now:           time.Now,
		newCode:       sixDigitCode,
	}
}

func dummyHash(cost int) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("hive-unknown-account"), cost)
	if err != nil {
		return nil
	}
	return h
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanGetProfile reports whether p may read its own profile.
func CanGetProfile(p domain.Principal) bool {
	return p != nil && p.IsAuthenticated() && p.IsActive()
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validation.Validate(ctx, validation.MapInput{Values: in.AsMap(), Schema: s.registerRules}); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "New user signed up", slog.Uint64("user_id", uint64(user.ID)))

	// Registration succeeds even when the code cannot be delivered; the user
	// can ask for a new one.
	if err := s.sendCode(ctx, user, purposeVerification, s.cfg.Verification); err != nil {
		s.log.WarnContext(ctx, "verification code not sent",
			slog.Uint64("user_id", uint64(user.ID)), slog.Any("error", err))
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if domain.IsNotFound(err) {
		_ = s.compareHash(s.dummyHash, []byte(password))
		return nil, domain.InvalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	hash := []byte(user.PasswordHash)
	if len(hash) == 0 {
		hash = s.dummyHash
	}
	if s.compareHash(hash, []byte(password)) != nil || user.PasswordHash == "" {
		return nil, domain.InvalidCredentials()
	}
	if !user.Active {
		return nil, domain.AccountDeactivated()
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, domain.Unexpected(err)
	}
	s.log.InfoContext(ctx, "User logged in", slog.Uint64("user_id", uint64(user.ID)))
	return token, nil
}

func (s *authService) Profile(ctx context.Context, p domain.Principal) (*domain.User, error) {
	if p == nil || !p.IsAuthenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if !CanGetProfile(p) {
		return nil, domain.Forbidden(PermissionGetProfile)
	}
	return s.users.GetByID(ctx, p.PrincipalID())
}

func (s *authService) UpdateProfile(ctx context.Context, p domain.Principal, in ProfileInput, opts ...validation.Option) (*domain.User, error) {
	user, err := s.Profile(ctx, p)
	if err != nil {
		return nil, err
	}

	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	in = ProfileInput{FirstName: trim(in.FirstName), LastName: trim(in.LastName)}

	opts = append([]validation.Option{validation.WithPrincipal(p)}, opts...)
	if err := validation.Validate(ctx, validation.MapInput{Values: in.AsMap(), Schema: s.profileRules}, opts...); err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) RequestEmailVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if domain.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.EmailVerifiedAt != nil {
		return nil
	}
	return s.sendCode(ctx, user, purposeVerification, s.cfg.Verification)
}

func (s *authService) VerifyEmail(ctx context.Context, email, code string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if domain.IsNotFound(err) {
		return invalidCode()
	}
	if err != nil {
		return err
	}
	if err := s.consumeCode(ctx, user.Email, purposeVerification, code); err != nil {
		return err
	}

	now := s.now().UTC()
	user.EmailVerifiedAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Email verified", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if domain.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.sendCode(ctx, user, purposeReset, s.cfg.Reset)
}

func (s *authService) ResetPassword(ctx context.Context, email, code, password string) error {
	in := validation.MapInput{Values: map[string]any{"password": password}, Schema: s.passwordRules}
	if err := validation.Validate(ctx, in); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if domain.IsNotFound(err) {
		return invalidCode()
	}
	if err != nil {
		return err
	}
	if err := s.consumeCode(ctx, user.Email, purposeReset, code); err != nil {
		return err
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if err := s.tokens.RevokeAll(user.ID); err != nil {
		return domain.Unexpected(err)
	}
	s.log.InfoContext(ctx, "Password reset", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

func (s *authService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", domain.Unexpected(fmt.Errorf("hash password: %w", err))
	}
	return string(h), nil
}

func codeKey(purpose, email string) string {
	return purpose + ":" + email
}

// sendCode replaces any pending code of purpose for user and mails the new one.
func (s *authService) sendCode(ctx context.Context, user *domain.User, purpose string, policy CodePolicy) error {
	value, err := s.newCode()
	if err != nil {
		return domain.Unexpected(fmt.Errorf("generate code: %w", err))
	}
	code := Code{Value: value, AttemptsLeft: policy.MaxAttempts, ExpiresAt: s.now().Add(policy.TTL)}
	if err := s.codes.Save(ctx, codeKey(purpose, user.Email), code, policy.TTL); err != nil {
		return domain.Unexpected(err)
	}

	msg := Message{To: user.Email}
	switch purpose {
	case purposeVerification:
		msg.Subject = "Verify your email address"
		msg.Body = fmt.Sprintf("Your verification code is %s. It expires in %s.", value, policy.TTL)
	default:
		msg.Subject = "Reset your password"
		msg.Body = fmt.Sprintf("Your password reset code is %s. It expires in %s.", value, policy.TTL)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return domain.Unexpected(err)
	}
	return nil
}

// consumeCode checks code against the pending one. A wrong code costs one
// attempt; the last failed attempt or a match removes the pending code.
func (s *authService) consumeCode(ctx context.Context, email, purpose, code string) error {
	ok, err := s.codes.Attempt(ctx, codeKey(purpose, email), strings.TrimSpace(code))
	if err != nil {
		return domain.Unexpected(err)
	}
	if !ok {
		return invalidCode()
	}
	return nil
}

func invalidCode() error {
	return domain.InputError(CodeInvalidCode, "Invalid or expired code.", "code")
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
