package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
)

// requestContext extracts the caller's context so service calls honour
// request cancellation. A detached gin context, as built by some tests,
// falls back to Background.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}
