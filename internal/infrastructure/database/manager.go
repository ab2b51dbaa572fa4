// Package database owns the process-wide database connection.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nebs-backend/internal/domain"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of the managed connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	DefaultWaitTimeout    = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

var (
	// ErrConnectionTimeout is returned to callers that waited on another
	// caller's attempt for longer than the wait timeout.
	ErrConnectionTimeout = errors.New("timed out waiting for database connection")
	// ErrNotConnected is returned by accessors while no connection is live.
	ErrNotConnected = errors.New("database not connected")
)

// ConnectionError is a failed connection attempt.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "database connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Conn is a live database connection.
type Conn interface {
	Host() string
	Notices() domain.NoticeRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Connector dials a database. onLost may be called at any time after a
// successful dial when the driver notices the connection went away.
type Connector interface {
	Connect(ctx context.Context, uri string, onLost func(error)) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, uri string, onLost func(error)) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context, uri string, onLost func(error)) (Conn, error) {
	return f(ctx, uri, onLost)
}

// Options configures a Manager. URI is resolved at dial time so a missing
// setting surfaces as a connection error instead of at construction.
type Options struct {
	URI            func() (string, error)
	Connector      Connector
	WaitTimeout    time.Duration
	ConnectTimeout time.Duration
}

type attempt struct {
	done chan struct{}
	err  error
	gen  uint64
}

// Manager connects at most once at a time and shares the outcome with every
// concurrent caller. The zero value is not usable; use NewManager.
type Manager struct {
	uri            func() (string, error)
	connector      Connector
	waitTimeout    time.Duration
	connectTimeout time.Duration

	state   atomic.Int32
	waiting atomic.Int32

	mu      sync.Mutex
	attempt *attempt
	conn    Conn
	host    string
	gen     uint64
	lastErr error
}

// NewManager returns a disconnected manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		uri:            opts.URI,
		connector:      opts.Connector,
		waitTimeout:    opts.WaitTimeout,
		connectTimeout: opts.ConnectTimeout,
	}
	if m.uri == nil {
		m.uri = func() (string, error) { return "", errors.New("database URI not configured") }
	}
	if m.connector == nil {
		m.connector = Dialer{}
	}
	if m.waitTimeout <= 0 {
		m.waitTimeout = DefaultWaitTimeout
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = DefaultConnectTimeout
	}
	return m
}

// State returns the current state without locking.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// EnsureConnected returns nil once a connection is live. Only one attempt runs
// at a time; callers arriving during an attempt wait for its outcome up to the
// wait timeout and then get ErrConnectionTimeout.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.State() == Connected {
		return nil
	}

	m.mu.Lock()
	switch m.State() {
	case Connected:
		m.mu.Unlock()
		return nil
	case Connecting:
		a := m.attempt
		m.mu.Unlock()
		return m.wait(ctx, a)
	}
	m.gen++
	a := &attempt{done: make(chan struct{}), gen: m.gen}
	m.attempt = a
	stale := m.conn
	m.conn = nil
	m.state.Store(int32(Connecting))
	m.mu.Unlock()

	if stale != nil {
		go closeQuietly(stale)
	}
	go m.connect(ctx, a)

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) wait(ctx context.Context, a *attempt) error {
	m.waiting.Add(1)
	defer m.waiting.Add(-1)

	timer := time.NewTimer(m.waitTimeout)
	defer timer.Stop()
	select {
	case <-a.done:
		return a.err
	case <-timer.C:
		return ErrConnectionTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect runs one attempt. It is detached from the initiating caller's
// cancellation so waiters still get a result; the dial is bounded by the
// connect timeout instead.
func (m *Manager) connect(parent context.Context, a *attempt) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.connectTimeout)
	defer cancel()

	conn, err := m.dial(ctx, a.gen)

	m.mu.Lock()
	if err != nil {
		a.err = &ConnectionError{Err: err}
		m.lastErr = a.err
		m.state.Store(int32(Failed))
	} else {
		m.conn = conn
		m.host = conn.Host()
		m.lastErr = nil
		m.state.Store(int32(Connected))
	}
	m.attempt = nil
	close(a.done)
	host := m.host
	m.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Database connection failed")
		return
	}
	log.Info().Str("host", host).Msg("Database connected")
}

func (m *Manager) dial(ctx context.Context, gen uint64) (conn Conn, err error) {
	defer func() {
		if r := recover(); r != nil {
			conn, err = nil, fmt.Errorf("connector panic: %v", r)
		}
	}()
	uri, err := m.uri()
	if err != nil {
		return nil, err
	}
	conn, err = m.connector.Connect(ctx, uri, m.lostHandler(gen))
	if err == nil && conn == nil {
		err = errors.New("connector returned no connection")
	}
	return conn, err
}

// lostHandler is the disconnect observer for one generation of connection.
// Events from older connections or repeated events are ignored, and it never
// reconnects; the next EnsureConnected does.
func (m *Manager) lostHandler(gen uint64) func(error) {
	return func(err error) {
		m.mu.Lock()
		if gen != m.gen || m.State() != Connected {
			m.mu.Unlock()
			return
		}
		m.state.Store(int32(Disconnected))
		host := m.host
		m.mu.Unlock()
		log.Warn().Err(err).Str("host", host).Msg("Database disconnected")
	}
}

// Host returns the host of the last successful connection.
func (m *Manager) Host() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}

// LastError returns the error of the last failed attempt, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) current() (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.State() != Connected {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

// Notices returns the notice repository of the live connection.
func (m *Manager) Notices() (domain.NoticeRepository, error) {
	c, err := m.current()
	if err != nil {
		return nil, err
	}
	return c.Notices(), nil
}

// Ping checks the live connection.
func (m *Manager) Ping(ctx context.Context) error {
	c, err := m.current()
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}

// Close closes the live connection and resets the manager to Disconnected.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	if m.State() != Connecting {
		m.gen++
		m.state.Store(int32(Disconnected))
	}
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close(ctx)
}

func closeQuietly(c Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		log.Debug().Err(err).Msg("Closing stale database connection failed")
	}
}
