package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neuralninja/authd/internal/database/testutil"
	"github.com/neuralninja/authd/internal/models"
	"github.com/neuralninja/authd/pkg/crypto"
)

func strPtr(s string) *string { return &s }

func TestUserServiceCreateAndFind(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	hash, err := crypto.HashPassword("pw-123456")
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), CreateUserInput{
		Email:        "Ann@X.com",
		DisplayName:  "Ann",
		PasswordHash: &hash,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "ann@x.com", created.Email)
	require.False(t, created.Verified)

	found, err := svc.FindByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = svc.FindByEmail(context.Background(), "missing@x.com")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateUserInput{
		Email:        "ann@x.com",
		DisplayName:  "Ann",
		PasswordHash: strPtr("hash-1"),
	})
	require.NoError(t, err)

	// Same email in a different case collides on the canonical form,
	// regardless of the first account's verified state.
	_, err = svc.Create(context.Background(), CreateUserInput{
		Email:        "ANN@X.COM",
		DisplayName:  "Other Ann",
		PasswordHash: strPtr("hash-2"),
	})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserServiceCreateDuplicateExternalID(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateUserInput{
		Email:       "ann@x.com",
		DisplayName: "Ann",
		ExternalID:  strPtr("google-1"),
		Verified:    true,
	})
	require.NoError(t, err)

	// A fresh email colliding on external_id reports the identity
	// conflict, not a duplicate email.
	_, err = svc.Create(context.Background(), CreateUserInput{
		Email:       "bob@x.com",
		DisplayName: "Bob",
		ExternalID:  strPtr("google-1"),
		Verified:    true,
	})
	require.ErrorIs(t, err, ErrDuplicateExternalID)
}

func TestUserServiceCreateConcurrentSameEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	const writers = 8

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), CreateUserInput{
				Email:        "racer@x.com",
				DisplayName:  "Racer",
				PasswordHash: strPtr("hash"),
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, ErrDuplicateEmail)
	}
	require.Equal(t, 1, winners)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("email = ?", "racer@x.com").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUserServiceCreateRequiresCredential(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateUserInput{
		Email:       "ann@x.com",
		DisplayName: "Ann",
	})
	require.Error(t, err)
}

func TestUserServiceSetVerified(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), CreateUserInput{
		Email:        "ann@x.com",
		DisplayName:  "Ann",
		PasswordHash: strPtr("hash"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetVerified(context.Background(), created.ID))

	found, err := svc.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, found.Verified)

	require.ErrorIs(t, svc.SetVerified(context.Background(), "missing"), ErrUserNotFound)
}

func TestUserServiceLinkExternalIdentity(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	first, err := svc.Create(context.Background(), CreateUserInput{
		Email:        "ann@x.com",
		DisplayName:  "Ann",
		PasswordHash: strPtr("hash"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.LinkExternalIdentity(context.Background(), first.ID, "google-1"))

	linked, err := svc.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.True(t, linked.Verified)
	require.True(t, linked.HasExternalIdentity())
	require.Equal(t, "google-1", *linked.ExternalID)

	// A second account may not claim the same external identity.
	second, err := svc.Create(context.Background(), CreateUserInput{
		Email:        "bob@x.com",
		DisplayName:  "Bob",
		PasswordHash: strPtr("hash"),
	})
	require.NoError(t, err)

	err = svc.LinkExternalIdentity(context.Background(), second.ID, "google-1")
	require.ErrorIs(t, err, ErrDuplicateExternalID)

	require.ErrorIs(t, svc.LinkExternalIdentity(context.Background(), "missing", "google-2"), ErrUserNotFound)
}

func TestUserServiceExternalIDUniquenessAllowsMultipleNulls(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		_, err := svc.Create(context.Background(), CreateUserInput{
			Email:        email,
			DisplayName:  "User",
			PasswordHash: strPtr("hash"),
		})
		require.NoError(t, err)
	}
}
