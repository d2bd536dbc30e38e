package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/service"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/response"
)

// ContextUserKey is the gin context key holding the caller's claims.
const ContextUserKey = "currentUser"

// JWT rejects requests without a valid bearer access token and stashes
// the verified claims for downstream handlers.
func JWT(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing bearer token"))
			return
		}
		claims, err := auth.ValidateToken(token)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
