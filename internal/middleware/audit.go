package middleware

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/repository"
)

// Audit writes an audit row after each successful request through the
// wrapped route. Failures of the write never affect the response; the
// request already succeeded by the time the row is recorded.
func Audit(repo *repository.UserRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims, ok := c.Get(ContextUserKey); ok {
			if user, ok := claims.(*models.JWTClaims); ok {
				entry.UserID = &user.UserID
			}
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		})

		_ = repo.CreateAuditLog(c.Request.Context(), entry)
	}
}
