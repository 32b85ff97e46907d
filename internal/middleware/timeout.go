package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/pkg/httputil"
)

// Timeout puts a deadline on the request context. Handlers run on the
// request goroutine; repository and provider calls observe the deadline, and
// a handler that ran out of time without answering gets a 504.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, httputil.Response{
				Error: &httputil.Error{Code: http.StatusGatewayTimeout, Message: "request timeout"},
			})
		}
	}
}
