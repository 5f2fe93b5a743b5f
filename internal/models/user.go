package models

// User is an account record. Email is stored in canonical (lower-cased)
// form, so uniqueness is case-insensitive by construction and lookups are
// plain equality matches.
//
// An account always carries at least one credential: a password hash for
// local signups, an external provider id for OAuth signups, or both once
// the identities have been linked.
type User struct {
	BaseModel

	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName string `gorm:"not null" json:"display_name"`

	// PasswordHash is nil for accounts provisioned through OAuth only.
	PasswordHash *string `gorm:"default:null" json:"-"`

	// ExternalID is the provider-scoped subject of a linked OAuth
	// identity. At most one user may hold a given id.
	ExternalID *string `gorm:"uniqueIndex;default:null" json:"-"`

	Verified bool `gorm:"default:false" json:"verified"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// HasExternalIdentity reports whether an OAuth identity has been linked.
func (u *User) HasExternalIdentity() bool {
	return u.ExternalID != nil && *u.ExternalID != ""
}
