package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a launch from spawn to verdict.
type Timer struct {
	start   time.Time
	metrics *Metrics
	game    string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, game string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		game:    game,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(outcome string) time.Duration {
	d := time.Since(t.start)
	t.metrics.RecordLaunch(t.game, outcome, d)
	return d
}
