package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neuralninja/authd/internal/auth/providers"
	"github.com/neuralninja/authd/internal/models"
	"github.com/neuralninja/authd/internal/services"
	apperrors "github.com/neuralninja/authd/pkg/errors"
)

var (
	// ErrIdentityEmailRequired indicates the provider did not supply an email address.
	ErrIdentityEmailRequired = errors.New("oauth bridge: email is required")
	// ErrIdentitySubjectRequired indicates the provider did not supply a stable subject.
	ErrIdentitySubjectRequired = errors.New("oauth bridge: subject is required")
)

// Bridge maps verified external identities onto local accounts, creating
// or linking as needed.
type Bridge struct {
	users *services.UserService
}

// NewBridge constructs a Bridge.
func NewBridge(users *services.UserService) (*Bridge, error) {
	if users == nil {
		return nil, errors.New("oauth bridge: user service is required")
	}
	return &Bridge{users: users}, nil
}

// MaterializeUser resolves an external identity to a local user record.
//
// An existing account with the same canonical email is linked to the
// identity and marked verified; relinking the same external id is a
// no-op, while a different already-linked id rejects the login. When no
// account exists one is provisioned without a password, verified
// immediately, because the provider has already proven the email.
func (b *Bridge) MaterializeUser(ctx context.Context, identity providers.Identity) (*models.User, error) {
	email := services.CanonicalEmail(identity.Email)
	if email == "" {
		return nil, ErrIdentityEmailRequired
	}
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, ErrIdentitySubjectRequired
	}

	user, err := b.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return b.linkExisting(ctx, user, subject)
	case errors.Is(err, services.ErrUserNotFound):
		return b.provision(ctx, identity, email, subject)
	default:
		return nil, fmt.Errorf("oauth bridge: find user: %w", err)
	}
}

func (b *Bridge) linkExisting(ctx context.Context, user *models.User, subject string) (*models.User, error) {
	if user.HasExternalIdentity() {
		if *user.ExternalID == subject {
			return user, nil
		}
		return nil, apperrors.ErrExternalIdentityConflict
	}

	if err := b.users.LinkExternalIdentity(ctx, user.ID, subject); err != nil {
		if errors.Is(err, services.ErrDuplicateExternalID) {
			return nil, apperrors.ErrExternalIdentityConflict
		}
		return nil, fmt.Errorf("oauth bridge: link identity: %w", err)
	}

	return b.users.FindByID(ctx, user.ID)
}

func (b *Bridge) provision(ctx context.Context, identity providers.Identity, email, subject string) (*models.User, error) {
	name := strings.TrimSpace(identity.DisplayName)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}

	user, err := b.users.Create(ctx, services.CreateUserInput{
		Email:       email,
		DisplayName: name,
		ExternalID:  &subject,
		Verified:    true,
	})
	if err == nil {
		return user, nil
	}

	// Lost a race against a concurrent callback for the same email; the
	// winner's row is authoritative, retry the link path against it.
	if errors.Is(err, services.ErrDuplicateEmail) {
		existing, findErr := b.users.FindByEmail(ctx, email)
		if findErr != nil {
			return nil, fmt.Errorf("oauth bridge: reload user: %w", findErr)
		}
		return b.linkExisting(ctx, existing, subject)
	}

	// The subject is already attached to an account under another email.
	if errors.Is(err, services.ErrDuplicateExternalID) {
		return nil, apperrors.ErrExternalIdentityConflict
	}

	return nil, fmt.Errorf("oauth bridge: create user: %w", err)
}
