package middleware

import (
	"net/http"
	"time"

	"ai_selector/internal/metrics"
	"ai_selector/internal/utils"
)

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Instrument logs each request and records its status and latency under
// route, which should be the registered pattern rather than the raw path.
func Instrument(route string, m metrics.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	logger := utils.NewLogger("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			m.ObserveHTTPRequest(r.Method, route, rec.status, elapsed)

			keyvals := []interface{}{
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
			}
			if tenant := GetTenantID(r.Context()); tenant != "" {
				keyvals = append(keyvals, "tenant_id", tenant)
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Error("Request failed", keyvals...)
				return
			}
			logger.Debug("Request served", keyvals...)
		})
	}
}
