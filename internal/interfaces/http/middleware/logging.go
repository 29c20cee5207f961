package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
)

// LoggingConfig tunes RequestLogging.
type LoggingConfig struct {
	// SkipPaths are served without a log line. They are still counted.
	SkipPaths     []string
	SlowThreshold time.Duration
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 3 * time.Second,
	}
}

// RequestLogging logs one line per request and records the request metric
// under the matched chi route pattern, so ids never become label values.
func RequestLogging(logger logging.Logger, metrics *prometheus.AppMetrics, cfg LoggingConfig) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			metrics.RecordHTTPRequest(r.Method, routePattern(r), status, duration)
			if skip[r.URL.Path] {
				return
			}

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", status),
				logging.Duration("duration", duration),
				logging.Int("bytes", ww.BytesWritten()),
				logging.String("remote_addr", r.RemoteAddr),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				fields = append(fields, logging.String("request_id", id))
			}
			if owner := r.Header.Get(OwnerHeader); owner != "" {
				fields = append(fields, logging.String("owner_id", owner))
			}

			switch {
			case status >= 500:
				logger.Error("http request failed", fields...)
			case status >= 400:
				logger.Warn("http request rejected", fields...)
			case cfg.SlowThreshold > 0 && duration >= cfg.SlowThreshold:
				logger.Warn("slow http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
