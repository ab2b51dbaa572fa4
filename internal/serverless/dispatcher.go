// Package serverless is the per-invocation entry shared by the function hosts.
package serverless

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"nebs-backend/internal/app"

	"github.com/rs/zerolog/log"
)

// AppSource yields the application handler (app.Loader).
type AppSource interface {
	Get(ctx context.Context) (http.Handler, error)
}

// Connector makes sure the database is reachable (database.Manager).
type Connector interface {
	EnsureConnected(ctx context.Context) error
}

const healthSuffix = "/health"

// Dispatcher answers health checks directly and forwards everything else to
// the application once it is loaded. A database failure does not stop the
// request; routes that need the database report it themselves.
type Dispatcher struct {
	Apps AppSource
	DB   Connector
	// Development adds error details to failure bodies.
	Development bool
	Now         func() time.Time
}

type healthBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type failureBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gw := &guardedWriter{ResponseWriter: w}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		stack := debug.Stack()
		log.Error().Interface("panic", rec).Bytes("stack", stack).Str("path", r.URL.Path).Msg("Unhandled error in serverless handler")
		if gw.wrote {
			return
		}
		body := failureBody{Success: false, Message: "Internal server error"}
		if d.Development {
			body.Stack = string(stack)
		}
		writeJSON(gw, http.StatusInternalServerError, body)
	}()

	if IsHealthPath(RequestPath(r)) {
		writeJSON(gw, http.StatusOK, healthBody{
			Success:   true,
			Message:   "Server is running",
			Timestamp: d.now().UTC().Format(time.RFC3339Nano),
		})
		return
	}

	h, err := d.Apps.Get(r.Context())
	if err != nil {
		d.loadFailed(gw, err)
		return
	}

	if d.DB != nil {
		if err := d.DB.EnsureConnected(r.Context()); err != nil {
			log.Error().Err(err).Msg("Database connection failed, continuing without it")
		}
	}

	h.ServeHTTP(gw, r)
}

func (d *Dispatcher) loadFailed(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("Failed to initialize application")
	body := failureBody{Success: false, Message: "Failed to initialize application"}
	var lerr *app.LoadError
	if errors.As(err, &lerr) && lerr.Hint == app.HintConfig {
		body.Hint = lerr.Hint.Message()
	}
	if d.Development {
		body.Error = err.Error()
		body.Stack = string(debug.Stack())
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// RequestPath returns the request path without query string or fragment.
func RequestPath(r *http.Request) string {
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	p := r.RequestURI
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p
}

// IsHealthPath reports whether path is a liveness probe.
func IsHealthPath(path string) bool {
	return path == healthSuffix || strings.HasSuffix(path, healthSuffix)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// guardedWriter remembers whether anything reached the client so a panic
// after the first write does not produce a second response.
type guardedWriter struct {
	http.ResponseWriter
	wrote bool
}

func (g *guardedWriter) WriteHeader(status int) {
	if g.wrote {
		return
	}
	g.wrote = true
	g.ResponseWriter.WriteHeader(status)
}

func (g *guardedWriter) Write(p []byte) (int, error) {
	g.wrote = true
	return g.ResponseWriter.Write(p)
}

func (g *guardedWriter) Flush() {
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		g.wrote = true
		f.Flush()
	}
}

func (g *guardedWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}
