package observability

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var startedAt = time.Now()

// MetricsRouter builds the read-only HTTP surface for long runs:
// liveness plus the Prometheus scrape endpoint.
func MetricsRouter(logger zerolog.Logger) *gin.Engine {
	RegisterMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(startedAt).String(),
			"app":    "gossipctl",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ServeMetrics blocks serving the metrics router on addr.
func ServeMetrics(addr string, logger zerolog.Logger) error {
	logger.Info().Str("addr", addr).Msg("metrics endpoint up")
	return MetricsRouter(logger).Run(addr)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	}
}
