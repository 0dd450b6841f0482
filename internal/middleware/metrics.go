package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/service"
)

// UnmatchedRoute labels requests that hit no registered route, keeping the
// path label bounded to the route table.
const UnmatchedRoute = "unmatched"

// Metrics records one observation per request, labelled by route template
// (for example /api/v1/bookings/:id/accept) rather than the concrete path.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = UnmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
