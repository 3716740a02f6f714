package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Logging writes one entry per request. Server errors log at error level,
// client errors at warn, and probe endpoints outside the API at debug.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := log.Fields{
			"request_id": c.GetString(keyRequestID),
			"method":     c.Request.Method,
			"route":      routeLabel(c),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if user := c.Param("user_id"); user != "" {
			fields["user_id"] = user
		}
		if avatar := c.Param("avatar_id"); avatar != "" {
			fields["avatar_id"] = avatar
		}
		entry := log.WithFields(fields)
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		case c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics":
			entry.Debug("Probe served")
		default:
			entry.Info("Request served")
		}
	}
}
