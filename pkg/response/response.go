package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clubpulse/clubpulse-api/internal/models"
	appErrors "github.com/clubpulse/clubpulse-api/pkg/errors"
	"github.com/clubpulse/clubpulse-api/pkg/middleware/requestid"
)

// Envelope is the wire contract every endpoint responds with.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes a success envelope with optional pagination and meta.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 {
		envelope.Meta = meta[0]
	}
	write(c, status, envelope)
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Envelope{Data: data})
}

// Error maps any error onto the envelope through the shared taxonomy
// and attaches the correlation ID so callers can quote it to support.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	envelope := Envelope{Error: appErr}
	if id := requestid.Value(c); id != "" {
		envelope.Meta = map[string]interface{}{"request_id": id}
	}
	write(c, appErr.Status, envelope)
}

// NoContent writes an empty 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Progress, claims and tickets are personal; intermediaries must not
// cache any of it.
func write(c *gin.Context, status int, envelope Envelope) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, envelope)
}
