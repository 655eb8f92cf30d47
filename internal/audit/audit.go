// Package audit records every request/response crossing a profile server:
// a zap line, prometheus counters, and a capped SQLite trail browsable at
// /_debug/requests. Profile handlers never call it; it wraps the whole mux.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const bodyPreviewLimit = 700

// Entry is one recorded request.
type Entry struct {
	TS          time.Time `json:"ts"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Query       string    `json:"query"`
	Status      int       `json:"status"`
	DurationMs  float64   `json:"duration_ms"`
	ClientIP    string    `json:"client_ip"`
	BodyPreview string    `json:"body_preview"`
	Error       string    `json:"error,omitempty"`
}

// Log is the audit sink for one profile server.
type Log struct {
	name    string
	store   *Store
	logger  *zap.Logger
	reqs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewLog creates an audit log writing to store and registering request
// metrics on reg. name labels the profile in log lines and metrics.
func NewLog(name string, store *Store, logger *zap.Logger, reg prometheus.Registerer) *Log {
	l := &Log{
		name:   name,
		store:  store,
		logger: logger,
		reqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "virtualmodems_requests_total",
			Help: "Requests handled, by profile, method, and status.",
		}, []string{"profile", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "virtualmodems_request_duration_seconds",
			Help:    "Request handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"profile", "method"}),
	}
	reg.MustRegister(l.reqs, l.latency)
	return l
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps next with request recording. The request body is read
// up front and replayed so handlers see it untouched.
func (l *Log) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		var preview string
		if r.Body != nil {
			raw, err := io.ReadAll(r.Body)
			if err == nil {
				preview = previewBody(raw)
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		var panicValue any

		defer func() {
			duration := time.Since(started)
			entry := Entry{
				TS:          started.UTC(),
				Method:      r.Method,
				Path:        r.URL.Path,
				Query:       r.URL.RawQuery,
				Status:      rec.status,
				DurationMs:  float64(duration.Microseconds()) / 1000,
				ClientIP:    clientIP(r),
				BodyPreview: preview,
			}
			if panicValue != nil {
				entry.Status = http.StatusInternalServerError
				entry.Error = fmt.Sprintf("panic: %v", panicValue)
			}
			l.record(r, entry)
			if panicValue != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()

		func() {
			defer func() { panicValue = recover() }()
			next.ServeHTTP(rec, r)
		}()
	})
}

func (l *Log) record(r *http.Request, entry Entry) {
	l.reqs.WithLabelValues(l.name, entry.Method, strconv.Itoa(entry.Status)).Inc()
	l.latency.WithLabelValues(l.name, entry.Method).Observe(entry.DurationMs / 1000)

	l.logger.Info("request",
		zap.String("profile", l.name),
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.String("query", entry.Query),
		zap.Int("status", entry.Status),
		zap.Float64("duration_ms", entry.DurationMs),
		zap.String("client_ip", entry.ClientIP),
	)
	if entry.Error != "" {
		l.logger.Error("request failed",
			zap.String("profile", l.name), zap.String("error", entry.Error))
	}

	if err := l.store.Insert(r.Context(), entry); err != nil {
		l.logger.Warn("audit insert failed", zap.Error(err))
	}
}

// Routes exposes the debug endpoints for browsing the trail.
func (l *Log) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"GET /_debug/requests":        l.handleList,
		"POST /_debug/requests/clear": l.handleClear,
	}
}

func (l *Log) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := l.store.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	count, err := l.store.Size(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count": count,
		"items": entries,
	})
}

func (l *Log) handleClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := l.store.Clear(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": deleted})
}

func previewBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	text := bytes.ReplaceAll(raw, []byte("\n"), []byte(`\n`))
	if len(text) <= bodyPreviewLimit {
		return string(text)
	}
	return fmt.Sprintf("%s...<truncated %d chars>", text[:bodyPreviewLimit], len(text)-bodyPreviewLimit)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
