// Package middleware holds the HTTP middleware shared by the searcher:
// request IDs, access logging, panic recovery, Prometheus metrics and
// timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/metrics"
)

// Metrics records request count and latency labelled by method and a
// bounded path, plus the in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			defer func() {
				elapsed := time.Since(start)
				m.HTTPRequestsInFlight.Dec()
				path := normalizePath(r.URL.Path)
				m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.code())).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

// statusWriter remembers the first status written. Zero means the handler
// never wrote a header, which net/http answers with 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

func (sw *statusWriter) code() int {
	if sw.status == 0 {
		return http.StatusOK
	}
	return sw.status
}

// knownPaths bounds the path label. Anything else is recorded as "other".
var knownPaths = map[string]bool{
	"/api/v1/search":           true,
	"/api/v1/index/stats":      true,
	"/api/v1/cache/stats":      true,
	"/api/v1/cache/invalidate": true,
	"/api/v1/analytics/stats":  true,
	"/health":                  true,
	"/health/live":             true,
	"/health/ready":            true,
}

func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}
