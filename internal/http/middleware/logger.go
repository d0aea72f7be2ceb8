package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"reviewloop.app/reviewd/common/logger"
)

// Logger emits one structured line per request after the handler runs, so
// the status and latency are known.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
			Component: "reviewd.http",
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			slog.ErrorContext(ctx, "request completed", attrs...)
		case c.Writer.Status() >= 400:
			slog.WarnContext(ctx, "request completed", attrs...)
		default:
			slog.InfoContext(ctx, "request completed", attrs...)
		}
	}
}
