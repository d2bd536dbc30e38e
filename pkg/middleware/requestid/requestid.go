package requestid

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// Header carries the correlation ID across service boundaries.
	Header = "X-Request-ID"

	ctxKey = "request_id"
)

// Middleware tags every request with a correlation ID. An inbound ID is
// reused so upstream proxies keep a single trace; oversized values are
// replaced rather than trusted.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := sanitize(c.GetHeader(Header))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value returns the correlation ID for the current request, or "".
func Value(c *gin.Context) string {
	v, _ := c.Get(ctxKey)
	id, _ := v.(string)
	return id
}

func sanitize(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 64 {
		return ""
	}
	return id
}
