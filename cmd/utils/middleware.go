package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger attaches a logger carrying method and path to the request and logs
// the outcome once the handler returns.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := base.With("method", r.Method, "path", r.URL.Path)
			r = r.WithContext(WithLogger(r.Context(), logger))

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			logger.Info("request", "duration", time.Since(start), "status", sw.status)
		})
	}
}

// Recoverer turns a panicking handler into the generic 500 page. gorilla's
// RecoveryHandler catches the panic; panicPage gives its bare 500 a JSON body and
// routes the log line through the request's logger.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := &panicPage{ResponseWriter: w, r: r}
		serve := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		})
		handlers.RecoveryHandler(handlers.RecoveryLogger(page))(serve).ServeHTTP(page, r)
	})
}

// panicPage only sees what RecoveryHandler writes after a panic.
type panicPage struct {
	http.ResponseWriter
	r *http.Request
}

func (p *panicPage) WriteHeader(status int) {
	p.Header().Set("Content-Type", "application/json")
	p.ResponseWriter.WriteHeader(status)
}

func (p *panicPage) Println(v ...interface{}) {
	Logger(p.r.Context()).Error("panic recovered", "error", fmt.Sprint(v...))
	if err := json.NewEncoder(p.ResponseWriter).Encode(map[string]string{"error": msgServerError}); err != nil {
		Logger(p.r.Context()).Error("Error encoding response", "error", err)
	}
}
