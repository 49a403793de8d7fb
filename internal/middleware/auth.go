// Package middleware holds the gin middleware shared by the HTTP routes.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"chatrelay-backend/internal/model"

	"github.com/gin-gonic/gin"
)

// Auth requires "Authorization: Bearer <apiKey>". An empty apiKey disables
// the check.
func Auth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Missing Authorization header")
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid Authorization header format. Expected: Bearer <token>")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
			abortUnauthorized(c, "Invalid API key")
			return
		}

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, model.NewErrorResponse(message, model.ErrorTypeAuthentication))
}
