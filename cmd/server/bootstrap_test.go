package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neuralninja/authd/internal/app"
	"github.com/neuralninja/authd/pkg/logger"
)

func TestBootstrapRuntime(t *testing.T) {
	cfg := &app.Config{
		Server: app.ServerConfig{Port: 0, LogLevel: "info"},
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			Path:   ":memory:",
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "bootstrap-test-secret",
				Issuer: "authd-test",
				TTL:    time.Hour,
			},
			OTP: app.OTPSettings{TTL: 10 * time.Minute},
		},
	}

	log := logger.WithModule("test")
	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.Router)
	require.NotNil(t, stack.Cleaner)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
