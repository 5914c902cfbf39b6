package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// authMiddleware validates the Bearer token against the configured bcrypt
// hash. With no hash configured every request is let through (local use).
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(h.apiTokenHash) == 0 {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		if err := bcrypt.CompareHashAndPassword(h.apiTokenHash, []byte(token)); err != nil {
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Next()
	}
}
