package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/neuralninja/authd/internal/api"
	"github.com/neuralninja/authd/internal/app"
	"github.com/neuralninja/authd/internal/app/maintenance"
	iauth "github.com/neuralninja/authd/internal/auth"
	"github.com/neuralninja/authd/internal/auth/providers"
	"github.com/neuralninja/authd/internal/database"
	"github.com/neuralninja/authd/internal/services"
	"github.com/neuralninja/authd/pkg/logger"
	"github.com/neuralninja/authd/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime initialises the database, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	userSvc, err := services.NewUserService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	otpSvc, err := services.NewOTPService(stack.DB, services.WithOTPTTL(cfg.Auth.OTP.TTL))
	if err != nil {
		return nil, fmt.Errorf("initialise otp service: %w", err)
	}

	authOpts := []services.AuthOption{
		services.WithCodeEcho(cfg.Auth.OTP.ExposeCodes),
	}
	if cfg.Email.SMTP.Enabled {
		mailer, mailErr := mail.NewSMTPMailer(cfg.SMTPSettings())
		if mailErr != nil {
			return nil, fmt.Errorf("initialise mailer: %w", mailErr)
		}
		authOpts = append(authOpts, services.WithMailer(mailer, cfg.Email.SMTP.From))
	} else {
		log.Warn("smtp disabled; verification codes will not be delivered")
	}
	if cfg.Auth.OTP.ExposeCodes {
		log.Warn("otp code echoing enabled; do not use this outside local development")
	}

	authSvc, err := services.NewAuthService(userSvc, otpSvc, jwtSvc, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	var provider providers.Provider
	if googleCfg := cfg.GoogleProviderConfig(); googleCfg.Configured() {
		provider, err = providers.NewGoogleProvider(ctx, googleCfg)
		if err != nil {
			return nil, fmt.Errorf("initialise google provider: %w", err)
		}
		log.Info("google sign-in enabled")
	} else {
		log.Info("google sign-in not configured")
	}

	codec, err := iauth.NewStateCodec(cfg.StateKey(), 0, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise state codec: %w", err)
	}

	bridge, err := iauth.NewBridge(userSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise oauth bridge: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, otpSvc)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:         stack.DB,
		JWT:        jwtSvc,
		Auth:       authSvc,
		Provider:   provider,
		StateCodec: codec,
		Bridge:     bridge,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
