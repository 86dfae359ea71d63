package api

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"social/internal/auth"
	"social/internal/notifications"
)

var sensitiveHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},

	strings.ToLower(notifications.InternalTokenHeader): {},
}

func redactHeaderValue(k, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
		return "<redacted>"
	}
	return v
}

// SafeHeaders returns the first value of each header with credentials redacted.
func SafeHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) == 0 {
			continue
		}
		out[k] = redactHeaderValue(k, v[0])
	}
	return out
}

// SafeQuery returns the raw query with the WebSocket token redacted.
func SafeQuery(u *url.URL) string {
	q := u.Query()
	if q.Has(auth.TokenQueryParam) {
		q.Set(auth.TokenQueryParam, "<redacted>")
	}
	return q.Encode()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logger logs one line per request.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Debug("request headers", "path", r.URL.Path, "headers", SafeHeaders(r))
		slog.Info("http request",
			"latency", time.Since(t),
			"status", rec.status,
			"method", r.Method,
			"path", r.URL.Path,
			"query", SafeQuery(r.URL),
			"remote", r.RemoteAddr,
		)
	})
}
