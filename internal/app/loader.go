// Package app loads the HTTP application module once per process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"

	"nebs-backend/internal/config"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrModuleNotFound means a configured module name has no registered builder.
	ErrModuleNotFound = errors.New("application module not found")
	// ErrNoHandler means a module built without error but produced no handler.
	ErrNoHandler = errors.New("application module produced no handler")
)

// Hint classifies a load failure for the client-facing error body.
type Hint int

const (
	HintGeneric Hint = iota
	HintConfig
	HintNotFound
)

// Message is the advice shown to clients; empty for HintGeneric.
func (h Hint) Message() string {
	switch h {
	case HintConfig:
		return "Check that DATABASE_URI (or MONGODB_URI) and the other required environment variables are set for this deployment"
	case HintNotFound:
		return "The application module is not registered or was not built; check APP_MODULES"
	default:
		return ""
	}
}

// LoadError is returned when no location produced a handler.
type LoadError struct {
	Err   error
	Hint  Hint
	Tried []string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load application module (tried %s): %v", strings.Join(e.Tried, ", "), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Location is one candidate place the application module can be built from.
type Location struct {
	Name string
	Load func(ctx context.Context) (http.Handler, error)
}

// Builder builds a module.
type Builder func(ctx context.Context) (http.Handler, error)

// Resolve turns configured module names into locations, in order. Names with
// no builder in registry become locations that fail with ErrModuleNotFound.
func Resolve(names []string, registry map[string]Builder) []Location {
	locs := make([]Location, 0, len(names))
	for _, name := range names {
		name := name
		b, ok := registry[name]
		if !ok {
			b = func(context.Context) (http.Handler, error) {
				return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
			}
		}
		locs = append(locs, Location{Name: name, Load: b})
	}
	return locs
}

type loaded struct {
	handler http.Handler
	module  string
}

// Loader caches the first handler a location produces. Failures are never
// cached, so a later call tries every location again.
type Loader struct {
	locations []Location
	cached    atomic.Pointer[loaded]
	group     singleflight.Group
}

// NewLoader returns a loader that tries locs in order.
func NewLoader(locs ...Location) *Loader {
	return &Loader{locations: locs}
}

// Get returns the cached handler or loads it. Concurrent first calls share one load.
func (l *Loader) Get(ctx context.Context) (http.Handler, error) {
	if c := l.cached.Load(); c != nil {
		return c.handler, nil
	}
	v, err, _ := l.group.Do("app", func() (any, error) {
		if c := l.cached.Load(); c != nil {
			return c.handler, nil
		}
		h, module, err := l.load(ctx)
		if err != nil {
			return nil, err
		}
		l.cached.Store(&loaded{handler: h, module: module})
		log.Info().Str("module", module).Msg("Application module loaded")
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(http.Handler), nil
}

// Module returns the name of the loaded module, or "" before a successful load.
func (l *Loader) Module() string {
	if c := l.cached.Load(); c != nil {
		return c.module
	}
	return ""
}

func (l *Loader) load(ctx context.Context) (http.Handler, string, error) {
	tried := make([]string, 0, len(l.locations))
	lastErr := ErrModuleNotFound
	for _, loc := range l.locations {
		tried = append(tried, loc.Name)
		h, err := build(ctx, loc)
		if err == nil && isNilHandler(h) {
			err = ErrNoHandler
		}
		if err == nil {
			return h, loc.Name, nil
		}
		log.Debug().Err(err).Str("module", loc.Name).Msg("Application module location failed")
		lastErr = err
	}
	return nil, "", &LoadError{Err: lastErr, Hint: classify(lastErr), Tried: tried}
}

func build(ctx context.Context, loc Location) (h http.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("module %s panicked: %v", loc.Name, r)
		}
	}()
	if loc.Load == nil {
		return nil, ErrModuleNotFound
	}
	return loc.Load(ctx)
}

// isNilHandler also catches typed nils such as (*T)(nil) or a nil HandlerFunc.
func isNilHandler(h http.Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func classify(err error) Hint {
	var cerr *config.Error
	switch {
	case errors.As(err, &cerr):
		return HintConfig
	case errors.Is(err, ErrModuleNotFound):
		return HintNotFound
	default:
		return HintGeneric
	}
}
