package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDKey is the gin context key carrying the per-request ID.
const RequestIDKey = "request_id"

// GinLogrusLogger returns gin middleware that logs one line per request
// through logrus. Each request is assigned a UUID, stored in the context
// and echoed back in the X-Request-Id response header.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set("X-Request-Id", requestID)

		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"bytes_out":  c.Writer.Size(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request completed")
		case status >= 400:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

// GinLogrusRecovery returns gin middleware that converts panics into 500
// responses and logs them with the request ID for correlation.
func GinLogrusRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"request_id": c.GetString(RequestIDKey),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"panic":      r,
				}).Error("panic recovered while handling request")
				c.AbortWithStatusJSON(500, gin.H{
					"error": gin.H{
						"message": "internal server error",
						"type":    "server_error",
					},
				})
			}
		}()
		c.Next()
	}
}
