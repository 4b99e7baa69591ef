package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/styles/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/styles/pkg/logger"
	"github.com/jaennil/guide_helper/backend/styles/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool, serviceName string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware(serviceName))
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/style", handler.Style)
	v1.GET("/tile/:z/:x/:y", handler.Tile)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// ginZapLogger logs every request once it is served. Server errors log at
// error level, client errors at warn, abandoned requests and probes at debug.
func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", l)

		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", time.Since(start),
			"size", c.Writer.Size(),
		}
		if source := c.Writer.Header().Get("X-Tile-Source"); source != "" {
			kv = append(kv, "source", source)
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error("request", kv...)
		case status == handler.StatusClientClosedRequest:
			l.Debug("request", kv...)
		case status >= http.StatusBadRequest:
			l.Warn("request", kv...)
		case c.FullPath() == "/api/v1/healthz" || c.FullPath() == "/metrics":
			l.Debug("request", kv...)
		default:
			l.Info("request", kv...)
		}
	}
}
