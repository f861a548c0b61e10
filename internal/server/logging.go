package server

import (
	"log/slog"
	"net/http"
	"time"
)

type responseTrace struct {
	http.ResponseWriter
	statusCode int
	bytesOut   int
}

func (r *responseTrace) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseTrace) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytesOut += n
	return n, err
}

func (r *responseTrace) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// slogMiddleware logs one line per request. Request size is included because
// upload durations only make sense next to the bytes received.
func slogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}

		trace := &responseTrace{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(trace, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", trace.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes_in", r.ContentLength,
			"bytes_out", trace.bytesOut,
			"remote_addr", r.RemoteAddr,
		)
	})
}
