package database

import (
	"gorm.io/gorm"

	"github.com/neuralninja/authd/internal/models"
)

// AutoMigrate creates or updates the database schema for all models. The
// unique indexes on users.email and users.external_id are what make
// concurrent signups and identity linking race-safe; application code
// never does read-then-write uniqueness checks.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.OTPChallenge{},
	)
}
