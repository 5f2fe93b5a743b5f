package models

import "time"

// OTPChallenge stores a one-time verification code issued for an email
// address. Issuing a new challenge deletes all prior rows for the same
// email, so at most one challenge per email is ever active (not used and
// not expired).
type OTPChallenge struct {
	BaseModel

	Email     string    `gorm:"index;not null" json:"email"`
	Code      string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`
}

// Expired reports whether the challenge has passed its expiry at the given time.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
