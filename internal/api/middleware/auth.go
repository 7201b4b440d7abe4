package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chatrelay/gateway/internal/shared/token"
)

// TenantKey is the gin context key holding the authenticated tenant id.
const TenantKey = "tenant_id"

// secretHeader carries the shared deployment secret.
const secretHeader = "X-Secret-Key"

// RequireSecret rejects requests that do not present the shared secret.
func RequireSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader(secretHeader) != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireToken additionally verifies the Bearer credential issued when the
// tenant's session became ready, and stores the tenant id on the context.
func RequireToken(secret string) gin.HandlerFunc {
	shared := []byte(secret)
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader(secretHeader) != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		bearer := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(bearer, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token not verified, please login to access the resource"})
			return
		}

		claims, err := token.Verify(shared, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token not verified, please login to access the resource"})
			return
		}

		c.Set(TenantKey, claims.TenantID)
		c.Next()
	}
}
