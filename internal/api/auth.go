package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────
// API Key Authentication Middleware
//
// Participating entities authenticate with: X-API-Key: <key>
//
// The key is required; the hub refuses to start without one. Public
// endpoints (/, /health) are excluded in the router.
// ──────────────────────────────────────────────────────────────────

// AuthMiddleware returns a Gin middleware validating the X-API-Key header.
// Missing and wrong keys get the same response so the check that failed is
// never leaked.
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-API-Key")

		// Constant-time comparison to prevent timing-based key enumeration.
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}
