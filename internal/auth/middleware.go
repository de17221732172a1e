package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity resolves the caller and stores the user id in the gin context
// under "userID". Accepted in order: Bearer token, X-User-ID header,
// X-Admin-ID header. Requests without any identity pass through; handlers
// that need one reject them.
func Identity(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearerToken(c); ok {
			userID, err := service.ParseToken(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token", "code": "INVALID_TOKEN"})
				return
			}
			c.Set("userID", userID)
			c.Next()
			return
		}

		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("userID", userID)
		} else if adminID := c.GetHeader("X-Admin-ID"); adminID != "" {
			c.Set("userID", adminID)
			c.Set("adminID", adminID)
		}
		c.Next()
	}
}

// RequireAdmin gates the admin console. The demo deployment trusts the
// admin header as long as it resolves to the seeded admin account.
func RequireAdmin(adminUserID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := c.GetString("adminID")
		if callerID == "" {
			callerID = c.GetString("userID")
		}
		if callerID != adminUserID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required", "code": "FORBIDDEN"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
