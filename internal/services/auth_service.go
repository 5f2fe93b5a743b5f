package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/neuralninja/authd/internal/models"
	"github.com/neuralninja/authd/pkg/crypto"
	apperrors "github.com/neuralninja/authd/pkg/errors"
	"github.com/neuralninja/authd/pkg/logger"
	"github.com/neuralninja/authd/pkg/mail"
	"github.com/neuralninja/authd/pkg/metrics"
)

// TokenIssuer mints signed access tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(userID, email string) (string, error)
}

// SignupInput carries the fields accepted at registration.
type SignupInput struct {
	DisplayName string
	Email       string
	Password    string
}

// SignupResult acknowledges a registration. Code is populated only when
// code echoing is enabled for local development; production deployments
// deliver codes over email exclusively.
type SignupResult struct {
	User *models.User
	Code string
}

// SigninResult is the outcome of a successful credential or code check.
// Either Token is set, or RequiresOTP is true and a fresh code has been
// issued for the account's email.
type SigninResult struct {
	User        *models.User
	Token       string
	RequiresOTP bool
	Code        string
}

// AuthOption customises the AuthService.
type AuthOption func(*AuthService)

// WithMailer wires an outbound mailer used for verification codes. The
// from address is used as the message sender.
func WithMailer(mailer mail.Mailer, from string) AuthOption {
	return func(s *AuthService) {
		s.mailer = mailer
		s.mailFrom = from
	}
}

// WithCodeEcho makes operations return issued codes to the caller.
// Intended for local development without an SMTP server only.
func WithCodeEcho(enabled bool) AuthOption {
	return func(s *AuthService) {
		s.echoCodes = enabled
	}
}

// AuthService orchestrates the account state machine: signup, signin,
// code verification, resend and session issuance. Accounts move
// Unregistered -> PendingVerification -> Verified; only verified
// accounts receive access tokens through the password flows.
type AuthService struct {
	users  *UserService
	otps   *OTPService
	tokens TokenIssuer
	log    *zap.Logger

	mailer    mail.Mailer
	mailFrom  string
	echoCodes bool
}

// NewAuthService constructs an AuthService.
func NewAuthService(users *UserService, otps *OTPService, tokens TokenIssuer, opts ...AuthOption) (*AuthService, error) {
	if users == nil {
		return nil, errors.New("auth service: user service is required")
	}
	if otps == nil {
		return nil, errors.New("auth service: otp service is required")
	}
	if tokens == nil {
		return nil, errors.New("auth service: token issuer is required")
	}

	service := &AuthService{
		users:  users,
		otps:   otps,
		tokens: tokens,
		log:    logger.WithModule("auth"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Signup registers a password account and issues its first verification
// code. Re-signup is rejected regardless of the existing account's
// verified state; unverified duplicates get an actionable message
// pointing at the resend flow instead.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	ctx = ensureContext(ctx)

	email := CanonicalEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	user, err := s.users.Create(ctx, CreateUserInput{
		Email:        email,
		DisplayName:  input.DisplayName,
		PasswordHash: &hash,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, s.duplicateSignupError(ctx, email)
		}
		return nil, fmt.Errorf("auth service: create user: %w", err)
	}

	code, err := s.issueCode(ctx, email, "signup")
	if err != nil {
		return nil, err
	}

	result := &SignupResult{User: user}
	if s.echoCodes {
		result.Code = code
	}
	return result, nil
}

// duplicateSignupError distinguishes verified from unverified duplicates
// after the insert already failed, so the check never races with it.
func (s *AuthService) duplicateSignupError(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return apperrors.ErrDuplicateEmail
	}
	if !user.Verified {
		return apperrors.ErrDuplicateEmailUnverified
	}
	return apperrors.ErrDuplicateEmail
}

// Signin checks password credentials. Unknown emails and wrong passwords
// produce the same error so responses cannot be used to enumerate
// accounts. Unverified accounts get a fresh code instead of a token.
func (s *AuthService) Signin(ctx context.Context, email, password string) (*SigninResult, error) {
	ctx = ensureContext(ctx)

	email = CanonicalEmail(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}

	if !user.HasPassword() || !crypto.VerifyPassword(*user.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.Verified {
		code, err := s.issueCode(ctx, email, "signin")
		if err != nil {
			return nil, err
		}
		metrics.AuthAttempts.WithLabelValues("otp_required").Inc()
		result := &SigninResult{User: user, RequiresOTP: true}
		if s.echoCodes {
			result.Code = code
		}
		return result, nil
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &SigninResult{User: user, Token: token}, nil
}

// VerifyOTP consumes a verification code, marks the account verified and
// returns a session token. All rejection reasons collapse into one
// outward error so guesses get no extra feedback; the precise outcome is
// recorded in logs and metrics.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*SigninResult, error) {
	ctx = ensureContext(ctx)

	email = CanonicalEmail(email)
	if err := s.otps.Verify(ctx, email, code); err != nil {
		outcome := otpOutcome(err)
		if outcome == "" {
			return nil, fmt.Errorf("auth service: verify code: %w", err)
		}
		metrics.OTPVerifications.WithLabelValues(outcome).Inc()
		s.log.Info("verification code rejected",
			zap.String("email", email),
			zap.String("outcome", outcome))
		return nil, apperrors.ErrOTPRejected
	}
	metrics.OTPVerifications.WithLabelValues("success").Inc()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}

	if !user.Verified {
		if err := s.users.SetVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("auth service: mark verified: %w", err)
		}
		user.Verified = true
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	return &SigninResult{User: user, Token: token}, nil
}

// ResendOTP issues a new verification code for a pending account,
// invalidating any previously issued code.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (*SignupResult, error) {
	ctx = ensureContext(ctx)

	email = CanonicalEmail(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}
	if user.Verified {
		return nil, apperrors.ErrAlreadyVerified
	}

	code, err := s.issueCode(ctx, email, "resend")
	if err != nil {
		return nil, err
	}

	result := &SignupResult{User: user}
	if s.echoCodes {
		result.Code = code
	}
	return result, nil
}

// IssueSession mints an access token for an already-authenticated user.
// Used after external identity logins, where the provider callback has
// proven who the user is.
func (s *AuthService) IssueSession(user *models.User) (*SigninResult, error) {
	if user == nil {
		return nil, errors.New("auth service: user is required")
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &SigninResult{User: user, Token: token}, nil
}

// WhoAmI resolves a token subject back to its user record.
func (s *AuthService) WhoAmI(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.ErrUnauthenticated
		}
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}
	return user, nil
}

// issueCode generates and records a fresh code, then dispatches it over
// email. Delivery failures are logged and tolerated; the code stays
// valid and the resend flow covers lost messages.
func (s *AuthService) issueCode(ctx context.Context, email, trigger string) (string, error) {
	code, err := s.otps.Issue(ctx, email)
	if err != nil {
		return "", fmt.Errorf("auth service: issue code: %w", err)
	}
	metrics.OTPIssued.WithLabelValues(trigger).Inc()

	if s.mailer == nil {
		s.log.Debug("mailer disabled, skipping verification email",
			zap.String("email", email))
		return code, nil
	}

	msg := mail.Message{
		From:    s.mailFrom,
		To:      []string{email},
		Subject: "Your verification code",
		Body: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
			code, int(OTPChallengeTTL.Minutes())),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Error("failed to send verification email",
			zap.String("email", email),
			zap.Error(err))
	}

	return code, nil
}

func otpOutcome(err error) string {
	switch {
	case errors.Is(err, ErrOTPNotFound):
		return "not_found"
	case errors.Is(err, ErrOTPMismatch):
		return "mismatch"
	case errors.Is(err, ErrOTPExpired):
		return "expired"
	case errors.Is(err, ErrOTPAlreadyUsed):
		return "already_used"
	default:
		return ""
	}
}
