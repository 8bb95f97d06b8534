package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AccessLog writes one "HTTP request" line per request, at warn for 4xx
// and error for 5xx. It expects the request id middleware to run first.
// Handlers reach the request-scoped logger through L(ctx).
func AccessLog(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		rawQuery := c.Request.URL.RawQuery

		ctx, l := WithRequestID(c.Request.Context(),
			base.With(zap.String("method", c.Request.Method), zap.String("path", c.Request.URL.Path)),
			c.GetString("request_id"))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		fields := make([]zap.Field, 0, 8)
		fields = append(fields,
			zap.Int("status", status),
			zap.Duration("latency", time.Since(began)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		)
		if route := c.FullPath(); route != "" {
			fields = append(fields, zap.String("route", route))
		}
		if rawQuery != "" {
			fields = append(fields, zap.String("query", rawQuery))
		}
		if errs := c.Errors.Errors(); len(errs) > 0 {
			fields = append(fields, zap.Strings("errors", errs))
		}

		if ce := withTrace(c.Request.Context(), l).Check(levelForStatus(status), "HTTP request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func levelForStatus(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// Recovery answers a panicking handler with a 500 envelope and logs the
// panic value with its stack
func Recovery(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			l.Error("panic recovered",
				zap.String("request_id", c.GetString("request_id")),
				zap.String("route", c.FullPath()),
				zap.Any("panic", rec),
				zap.Stack("stacktrace"))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"code": "INTERNAL_ERROR", "message": "An internal error occurred"},
			})
		}()
		c.Next()
	}
}
