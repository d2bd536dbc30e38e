package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/middleware"
	"github.com/clubpulse/clubpulse-api/internal/models"
)

// claimsFromContext resolves the authenticated caller. Routes behind
// the JWT middleware always have claims; a nil return means the route
// was wired without it.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
