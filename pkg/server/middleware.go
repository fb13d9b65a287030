package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/observability/metrics"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// requestID preserves an incoming X-Request-ID or generates a UUID, and
// echoes it on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// accessLog logs each request after it completes. Liveness and metrics
// scrapes are logged at debug level.
func accessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []any{
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("management request failed", fields...)
		case c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics":
			log.Debug("management request", fields...)
		default:
			log.Info("management request", fields...)
		}
	}
}

// recovery catches handler panics, logs them with a stack trace and answers 500.
func recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				id := c.GetString(requestIDKey)
				log.Error("panic recovered",
					"request_id", id,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
						Error:     "internal_server_error",
						Message:   "an unexpected error occurred",
						RequestID: id,
					})
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// recordMetrics records duration, count and in-flight gauges labelled by the
// matched route template.
func recordMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer metrics.TrackInFlight()()

		start := time.Now()
		c.Next()

		metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
