package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/neuralninja/authd/internal/database"
	"github.com/neuralninja/authd/pkg/response"
)

// Health reports process liveness plus a database probe. The endpoint
// answers 200 even when the database is unreachable so that liveness
// checks do not restart a process that could still recover; the payload
// carries the degradation.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "connected"
		status := "ok"
		if err := database.Ping(db); err != nil {
			dbStatus = "disconnected"
			status = "degraded"
		}

		response.Success(c, http.StatusOK, gin.H{
			"status":   status,
			"database": dbStatus,
		})
	}
}
