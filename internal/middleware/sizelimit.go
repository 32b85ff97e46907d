package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/pkg/httputil"
)

// SizeLimitConfig represents size limit configuration
type SizeLimitConfig struct {
	MaxBodySize   int64
	MaxHeaderSize int

	// Paths under these prefixes get WebhookBodySize instead.
	WebhookPrefixes []string
	WebhookBodySize int64
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:     1 << 20,   // 1MB
		MaxHeaderSize:   1 << 14,   // 16KB
		WebhookBodySize: 256 << 10, // 256KB
	}
}

// SizeLimit rejects oversized requests up front and caps the body reader for
// requests that do not declare a length.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := config.MaxBodySize
		for _, prefix := range config.WebhookPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) && config.WebhookBodySize > 0 {
				limit = config.WebhookBodySize
				break
			}
		}

		if c.Request.ContentLength > limit {
			tooLarge(c, "request body too large")
			return
		}

		headerSize := 0
		for name, values := range c.Request.Header {
			headerSize += len(name)
			for _, value := range values {
				headerSize += len(value)
			}
		}
		if config.MaxHeaderSize > 0 && headerSize > config.MaxHeaderSize {
			tooLarge(c, "request headers too large")
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func tooLarge(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.Response{
		Error: &httputil.Error{Code: http.StatusRequestEntityTooLarge, Message: msg},
	})
}
