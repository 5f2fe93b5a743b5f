package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/neuralninja/authd/internal/auth"
	"github.com/neuralninja/authd/internal/auth/providers"
	"github.com/neuralninja/authd/internal/handlers"
	"github.com/neuralninja/authd/internal/middleware"
	"github.com/neuralninja/authd/internal/services"
)

// Deps bundles the constructed services the router mounts. Provider is
// optional; when nil the external login routes answer with a
// configuration error.
type Deps struct {
	DB         *gorm.DB
	JWT        *iauth.JWTService
	Auth       *services.AuthService
	Provider   providers.Provider
	StateCodec *iauth.StateCodec
	Bridge     *iauth.Bridge
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	if deps.StateCodec == nil {
		return nil, fmt.Errorf("state codec must be provided")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("oauth bridge must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	r.NoRoute(middleware.NotFoundHandler)

	// Public endpoints
	r.GET("/health", handlers.Health(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Auth)
	oauthHandler := handlers.NewOAuthHandler(deps.Provider, deps.StateCodec, deps.Bridge, deps.Auth)

	api := r.Group("/api")
	{
		api.POST("/signup", authHandler.Signup)
		api.POST("/signin", authHandler.Signin)
		api.POST("/verify-otp", authHandler.VerifyOTP)
		api.POST("/resend-otp", authHandler.ResendOTP)

		api.GET("/auth/google", oauthHandler.Begin)
		api.GET("/auth/google/callback", oauthHandler.Callback)
	}

	// Authenticated routes
	requireAuth := middleware.Auth(deps.JWT)
	api.GET("/me", requireAuth, authHandler.Me)
	api.POST("/logout", requireAuth, authHandler.Logout)

	return r, nil
}
