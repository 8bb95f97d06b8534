package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// RequirePermission admits callers whose token carries permission
func RequirePermission(permission string) gin.HandlerFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission admits callers holding one of permissions. It reads
// the claims JWTAuth stored, so it must be mounted after it.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch claims := GetJWTClaims(c); {
		case claims == nil:
			abortWithError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		case !claims.HasAnyPermission(permissions...):
			abortWithError(c, http.StatusForbidden, dto.ErrCodeForbidden, "Missing required permission")
		default:
			c.Next()
		}
	}
}
