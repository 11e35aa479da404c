package middleware

import (
	"net/http"
	"strings"

	"au-panel/internal/cache"
	"au-panel/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	identityKey = "identity"
	tokenKey    = "token"
)

// Auth resolves the Bearer token against the session cache and stores the
// caller identity on the request context. Lookup does not slide the TTL;
// only the validate endpoint renews.
func Auth(sessions *cache.SessionCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}
		token := parts[1]

		identity, ok := sessions.Lookup(token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// Identity returns the caller stored by Auth.
func Identity(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(models.Identity)
	return identity
}

// Token returns the bearer token stored by Auth.
func Token(c *gin.Context) string {
	return c.GetString(tokenKey)
}
