package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/neuralninja/authd/internal/models"
	"github.com/neuralninja/authd/internal/services"
	"github.com/neuralninja/authd/pkg/logger"
)

const (
	defaultExpiredSpec  = "@hourly"
	defaultConsumedSpec = "@daily"
)

// Cleaner runs background maintenance: purging expired verification
// codes and deleting consumed ones. Expired and used codes are already
// unusable, so the sweeps only keep the challenge table small.
type Cleaner struct {
	db   *gorm.DB
	otps *services.OTPService
	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	expiredSchedule  string
	consumedSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithExpiredSchedule overrides the cron specification for the expired code sweep.
func WithExpiredSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.expiredSchedule = spec
		}
	}
}

// WithConsumedSchedule overrides the cron specification for the consumed code sweep.
func WithConsumedSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.consumedSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, otps *services.OTPService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:               db,
		otps:             otps,
		now:              time.Now,
		expiredSchedule:  defaultExpiredSpec,
		consumedSchedule: defaultConsumedSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.otps != nil {
		if _, err := c.cron.AddFunc(c.expiredSchedule, func() {
			if _, err := c.otps.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("expired code cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.consumedSchedule, func() {
			if _, err := CleanupConsumed(context.Background(), c.db); err != nil {
				c.log.Warn("consumed code cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all cleanup routines sequentially. Primarily used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.otps != nil {
		if _, err := c.otps.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := CleanupConsumed(ctx, c.db); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupConsumed removes challenges that were already used. Their
// expiry sweep would catch them eventually; deleting them early keeps
// verified signups from lingering in the table.
func CleanupConsumed(ctx context.Context, db *gorm.DB) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup consumed: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("used = ?", true).
		Delete(&models.OTPChallenge{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup consumed: %w", result.Error)
	}
	return result.RowsAffected, nil
}
