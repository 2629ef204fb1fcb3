// Package middleware provides the Gin middleware shared by every gateway route: request IDs,
// access logging, Prometheus metrics, security headers and rate limiting. All of it is
// registered in internal/api/router.go.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careline/careline/internal/telemetry"
)

// MetricsMiddleware records http_requests_total{method, path, status} and
// http_request_duration_seconds{method, path} for every request.
//
// The path label is the matched Gin route template from c.FullPath(). Requests that
// match no route use "<no-route>" so scanners cannot inflate label cardinality.
//
// Register it after gin.Recovery() and RequestIDMiddleware so the status written by
// error handlers is captured.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
