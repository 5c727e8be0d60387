package middleware

import (
	"net/http"

	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// BodyLimit returns a middleware that limits request body size
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodePayloadTooLarge,
				"Request body exceeds maximum allowed size",
				GetRequestID(c),
			))
			return
		}

		// Wrap the body with a limited reader for streaming requests
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
