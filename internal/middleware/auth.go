package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jedmorris/CRM-manager/internal/auth"
	"github.com/jedmorris/CRM-manager/internal/config"
)

// AuthMiddleware enforces Authorization: Bearer <jwt> on protected routes.
// Browser websocket clients cannot set headers, so a token query parameter
// is accepted as a fallback. On success the user id lands in gin.Context.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	secret := ""
	if cfg != nil {
		secret = cfg.JWT.Secret
	}
	return func(c *gin.Context) {
		token := ""
		ah := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
			token = strings.TrimSpace(ah[len("Bearer "):])
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "missing bearer token",
			})
			return
		}

		claims, err := auth.ParseToken(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": err.Error(),
			})
			return
		}

		c.Set("user_id", claims.UserID)
		if claims.Email != "" {
			c.Set("user_email", claims.Email)
		}
		c.Next()
	}
}

// InternalSecretMiddleware guards scheduler-only endpoints with a shared
// secret header. With no secret configured the endpoint is closed.
func InternalSecretMiddleware(cfg *config.Config) gin.HandlerFunc {
	secret := ""
	if cfg != nil {
		secret = cfg.Scheduler.Secret
	}
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Internal-Secret") != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "invalid internal secret",
			})
			return
		}
		c.Next()
	}
}
