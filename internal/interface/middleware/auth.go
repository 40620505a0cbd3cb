package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"account-service/pkg/helpers"
	"account-service/pkg/response"
)

// CtxUserIDKey is the Gin context key the gate sets on success.
const CtxUserIDKey = "userID"

const bearerPrefix = "Bearer "

// Auth extracts the bearer token from the Authorization header,
// verifies it and injects the subject account id into the Gin context.
// Invalid and expired tokens produce the same external response; the
// gate itself performs no storage access.
func Auth(jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			response.Error[any](c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			response.Error[any](c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(token)
		if err != nil {
			// err still distinguishes expired from invalid for logs;
			// the response must not.
			response.Error[any](c, http.StatusUnauthorized, "invalid or expired token", nil)
			c.Abort()
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}
