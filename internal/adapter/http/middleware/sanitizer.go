package middleware

import (
	"net/http"

	"custodial-wallet-engine/pkg/apperror"
	"custodial-wallet-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize rejects requests that declare a body over maxBytes and caps the
// reader for the rest, so the signature check never buffers more than that.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.AbortError(c, apperror.New("REQ_002", "Request body too large.", http.StatusRequestEntityTooLarge))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
