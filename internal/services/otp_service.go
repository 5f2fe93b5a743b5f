package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/neuralninja/authd/internal/models"
	"github.com/neuralninja/authd/pkg/crypto"
)

const (
	// OTPChallengeTTL is the fixed validity window for issued codes.
	OTPChallengeTTL = 10 * time.Minute
	// OTPCodeLength is the number of digits in an issued code.
	OTPCodeLength = 6
)

var (
	// ErrOTPNotFound indicates no challenge exists for the email.
	ErrOTPNotFound = errors.New("otp service: not found")
	// ErrOTPMismatch indicates the supplied code does not match the newest challenge.
	ErrOTPMismatch = errors.New("otp service: mismatch")
	// ErrOTPExpired indicates the newest challenge has passed its expiry.
	ErrOTPExpired = errors.New("otp service: expired")
	// ErrOTPAlreadyUsed signals that the challenge has already been consumed.
	ErrOTPAlreadyUsed = errors.New("otp service: already used")
)

// OTPOption customises the OTPService.
type OTPOption func(*OTPService)

// WithOTPClock injects a custom time source.
func WithOTPClock(clock func() time.Time) OTPOption {
	return func(s *OTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOTPTTL overrides the challenge lifetime.
func WithOTPTTL(d time.Duration) OTPOption {
	return func(s *OTPService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// OTPService is the ledger of one-time verification codes. It maintains
// two invariants: at most one challenge per email is active at a time,
// and a challenge is consumed exactly once.
type OTPService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewOTPService constructs an OTPService with the provided dependencies.
func NewOTPService(db *gorm.DB, opts ...OTPOption) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}

	service := &OTPService{
		db:  db,
		ttl: OTPChallengeTTL,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue generates a fresh code for the email, invalidating every prior
// challenge in the same transaction so only the newest code can verify.
// Callers must canonicalize the email first.
func (s *OTPService) Issue(ctx context.Context, email string) (string, error) {
	ctx = ensureContext(ctx)

	if email == "" {
		return "", errors.New("otp service: email is required")
	}

	code, err := crypto.GenerateOTPCode(OTPCodeLength)
	if err != nil {
		return "", fmt.Errorf("otp service: generate code: %w", err)
	}

	now := s.now()
	challenge := models.OTPChallenge{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", email).Delete(&models.OTPChallenge{}).Error; err != nil {
			return fmt.Errorf("invalidate prior challenges: %w", err)
		}
		if err := tx.Create(&challenge).Error; err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("otp service: issue: %w", err)
	}

	return code, nil
}

// Verify checks the supplied code against the newest challenge for the
// email and consumes it on success. The mark-used update is guarded by a
// used = false predicate, so of two concurrent verifications exactly one
// succeeds and the other observes ErrOTPAlreadyUsed.
func (s *OTPService) Verify(ctx context.Context, email, code string) error {
	ctx = ensureContext(ctx)

	var challenge models.OTPChallenge
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC").
		Take(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOTPNotFound
		}
		return fmt.Errorf("otp service: find challenge: %w", err)
	}

	if challenge.Used {
		return ErrOTPAlreadyUsed
	}
	if challenge.Expired(s.now()) {
		return ErrOTPExpired
	}
	if challenge.Code != code {
		return ErrOTPMismatch
	}

	res := s.db.WithContext(ctx).Model(&models.OTPChallenge{}).
		Where("id = ? AND used = ?", challenge.ID, false).
		Update("used", true)
	if res.Error != nil {
		return fmt.Errorf("otp service: mark used: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race against a concurrent verification.
		return ErrOTPAlreadyUsed
	}

	return nil
}

// PurgeExpired deletes challenges past their expiry. Called by the
// maintenance sweep; expired rows are already unusable, this just keeps
// the table small.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.OTPChallenge{})
	if res.Error != nil {
		return 0, fmt.Errorf("otp service: purge expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
