package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dayplanner/internal/metrics"
	logx "dayplanner/pkg/logx"
)

const requestIDKey = "request_id"

// RequestLogger writes one structured line per request and tags it with a request id.
func RequestLogger(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()

		fields := []logx.Field{
			logx.String("rid", reqID),
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Int64("latency_ms", time.Since(start).Milliseconds()),
			logx.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logx.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			log.Warn("http_request", fields...)
			return
		}
		log.Debug("http_request", fields...)
	}
}

// Recovery turns handler panics into 500s and logs them.
func Recovery(log logx.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		log.Error("http handler panicked", logx.String("path", c.Request.URL.Path), logx.Any("panic", rec))
		c.AbortWithStatusJSON(500, gin.H{"error": "internal error"})
	})
}
