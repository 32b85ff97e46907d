package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/httputil"
)

// ErrorHandler logs the errors handlers attached to the context and reports
// server errors to Sentry. Handlers that returned without writing a response
// get the generic 500 envelope.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			status := http.StatusInternalServerError
			if appErr, ok := errors.As(e.Err); ok {
				status = appErr.StatusCode()
			}

			event := log.Warn()
			if status >= http.StatusInternalServerError {
				event = log.Error()
				CaptureError(c, e.Err)
			}
			event.
				Err(e.Err).
				Str("request_id", requestID).
				Str("method", c.Request.Method).
				Str("path", c.FullPath()).
				Int("status", status).
				Msg("request error")
		}

		if !c.Writer.Written() {
			httputil.RespondWithError(c, c.Errors.Last().Err)
		}
	}
}
