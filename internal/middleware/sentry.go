package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// Sentry starts a transaction per request and gives the request its own hub
// so scope data does not leak between requests.
func Sentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sentry.CurrentHub().Client() == nil {
			c.Next()
			return
		}

		hub := sentry.CurrentHub().Clone()
		ctx := sentry.SetHubOnContext(c.Request.Context(), hub)
		name := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
		transaction := sentry.StartTransaction(ctx, name, sentry.ContinueFromRequest(c.Request))
		defer func() {
			transaction.Status = sentry.HTTPtoSpanStatus(c.Writer.Status())
			transaction.Finish()
		}()

		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetContext("request", map[string]interface{}{
				"method":  c.Request.Method,
				"url":     c.Request.URL.Path,
				"headers": safeHeaders(c.Request.Header),
			})
			scope.SetTag("http.method", c.Request.Method)
			scope.SetTag("http.route", c.FullPath())
		})

		c.Request = c.Request.WithContext(transaction.Context())
		c.Next()
	}
}

// CaptureError reports err on the request's hub.
func CaptureError(c *gin.Context, err error) {
	hub := sentry.GetHubFromContext(c.Request.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", c.GetString(ContextRequestID))
		if id, ok := c.Get(ContextUserID); ok {
			scope.SetUser(sentry.User{ID: fmt.Sprint(id)})
		}
		hub.CaptureException(err)
	})
}

func safeHeaders(h http.Header) map[string]string {
	safe := make(map[string]string, len(h))
	for k, v := range h {
		switch {
		case strings.EqualFold(k, "Authorization"), strings.EqualFold(k, "Cookie"),
			strings.EqualFold(k, "Paymongo-Signature"):
			safe[k] = "[FILTERED]"
		default:
			safe[k] = strings.Join(v, ", ")
		}
	}
	return safe
}
