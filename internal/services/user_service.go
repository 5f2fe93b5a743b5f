package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/neuralninja/authd/internal/models"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user service: not found")
	// ErrDuplicateEmail signals that the canonical email already names an account.
	ErrDuplicateEmail = errors.New("user service: duplicate email")
	// ErrDuplicateExternalID signals that another account already holds the external identity.
	ErrDuplicateExternalID = errors.New("user service: duplicate external id")
)

// CreateUserInput describes the fields accepted when creating a user.
// Exactly the credentials provided are stored; at least one of
// PasswordHash or ExternalID must be set.
type CreateUserInput struct {
	Email        string
	DisplayName  string
	PasswordHash *string
	ExternalID   *string
	Verified     bool
}

// UserService is the repository for user accounts. All uniqueness
// guarantees come from storage-level unique indexes, so concurrent
// writers racing on the same email or external id observe a clean
// duplicate error instead of corrupting state.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// FindByEmail looks up a user by canonical email. Callers must
// canonicalize before calling.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: find by email: %w", err)
	}
	return &user, nil
}

// FindByID looks up a user by id.
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: find by id: %w", err)
	}
	return &user, nil
}

// Create inserts a new account. The unique index on email makes the
// uniqueness check atomic with the insert.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := CanonicalEmail(input.Email)
	if email == "" {
		return nil, errors.New("user service: email is required")
	}
	if input.PasswordHash == nil && input.ExternalID == nil {
		return nil, errors.New("user service: at least one credential is required")
	}

	user := &models.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: input.PasswordHash,
		ExternalID:   input.ExternalID,
		Verified:     input.Verified,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, s.classifyDuplicate(ctx, email, input.ExternalID)
		}
		return nil, fmt.Errorf("user service: create: %w", err)
	}

	return user, nil
}

// classifyDuplicate decides which unique index rejected an insert.
// Drivers do not name the violated index consistently, and the sqlite
// translation drops it entirely, so the email row is probed instead.
func (s *UserService) classifyDuplicate(ctx context.Context, email string, externalID *string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Count(&count).Error
	if err == nil && count > 0 {
		return ErrDuplicateEmail
	}
	if externalID != nil {
		return ErrDuplicateExternalID
	}
	return ErrDuplicateEmail
}

// SetVerified flips the verified flag for the given user.
func (s *UserService) SetVerified(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("verified", true)
	if res.Error != nil {
		return fmt.Errorf("user service: set verified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LinkExternalIdentity attaches an OAuth identity to an existing account
// and marks it verified. The unique index on external_id makes the link
// atomic with the uniqueness check.
func (s *UserService) LinkExternalIdentity(ctx context.Context, id, externalID string) error {
	ctx = ensureContext(ctx)

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return errors.New("user service: external id is required")
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"external_id": externalID, "verified": true})
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return ErrDuplicateExternalID
		}
		return fmt.Errorf("user service: link external identity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
