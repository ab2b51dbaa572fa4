package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nebs-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	host   string
	closed atomic.Bool
}

func (c *fakeConn) Host() string                     { return c.host }
func (c *fakeConn) Notices() domain.NoticeRepository { return nil }
func (c *fakeConn) Ping(ctx context.Context) error   { return nil }
func (c *fakeConn) Close(ctx context.Context) error {
	c.closed.Store(true)
	return nil
}

// fakeConnector counts dials and blocks each one until release is closed (if set).
type fakeConnector struct {
	dials   atomic.Int32
	release chan struct{}
	err     error
	mu      sync.Mutex
	onLost  func(error)
	conns   []*fakeConn
}

func (f *fakeConnector) Connect(ctx context.Context, uri string, onLost func(error)) (Conn, error) {
	f.dials.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{host: "db.internal"}
	f.mu.Lock()
	f.onLost = onLost
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeConnector) lost() func(error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onLost
}

func newTestManager(c Connector, wait time.Duration) *Manager {
	return NewManager(Options{
		URI:            func() (string, error) { return "mongodb://db.internal:27017/nebs", nil },
		Connector:      c,
		WaitTimeout:    wait,
		ConnectTimeout: time.Second,
	})
}

func TestEnsureConnected_ConnectedIsFastPath(t *testing.T) {
	fc := &fakeConnector{}
	m := newTestManager(fc, time.Second)

	require.NoError(t, m.EnsureConnected(context.Background()))
	require.NoError(t, m.EnsureConnected(context.Background()))
	require.NoError(t, m.EnsureConnected(context.Background()))

	assert.Equal(t, int32(1), fc.dials.Load())
	assert.Equal(t, Connected, m.State())
	assert.Equal(t, "db.internal", m.Host())
	_, err := m.Notices()
	assert.NoError(t, err)
}

func TestEnsureConnected_ConcurrentCallersShareOneAttempt(t *testing.T) {
	fc := &fakeConnector{release: make(chan struct{})}
	m := newTestManager(fc, 5*time.Second)

	const callers = 10
	errs := make(chan error, callers+1)
	go func() { errs <- m.EnsureConnected(context.Background()) }()
	require.Eventually(t, func() bool { return m.State() == Connecting }, time.Second, time.Millisecond)

	for i := 0; i < callers; i++ {
		go func() { errs <- m.EnsureConnected(context.Background()) }()
	}
	require.Eventually(t, func() bool { return m.waiting.Load() == callers }, time.Second, time.Millisecond)
	close(fc.release)

	for i := 0; i < callers+1; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), fc.dials.Load())
	assert.Equal(t, Connected, m.State())
}

func TestEnsureConnected_FailureIsSharedAndNotSticky(t *testing.T) {
	boom := errors.New("server selection error")
	fc := &fakeConnector{release: make(chan struct{}), err: boom}
	m := newTestManager(fc, 5*time.Second)

	const callers = 5
	errs := make(chan error, callers+1)
	go func() { errs <- m.EnsureConnected(context.Background()) }()
	require.Eventually(t, func() bool { return m.State() == Connecting }, time.Second, time.Millisecond)
	for i := 0; i < callers; i++ {
		go func() { errs <- m.EnsureConnected(context.Background()) }()
	}
	require.Eventually(t, func() bool { return m.waiting.Load() == callers }, time.Second, time.Millisecond)
	close(fc.release)

	for i := 0; i < callers+1; i++ {
		err := <-errs
		var cerr *ConnectionError
		require.True(t, errors.As(err, &cerr))
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int32(1), fc.dials.Load())
	assert.Equal(t, Failed, m.State())
	assert.ErrorIs(t, m.LastError(), boom)

	fc.err = nil
	require.NoError(t, m.EnsureConnected(context.Background()))
	assert.Equal(t, int32(2), fc.dials.Load())
	assert.Equal(t, Connected, m.State())
	assert.NoError(t, m.LastError())
}

func TestEnsureConnected_WaiterTimesOut(t *testing.T) {
	fc := &fakeConnector{release: make(chan struct{})}
	m := newTestManager(fc, 30*time.Millisecond)
	t.Cleanup(func() { close(fc.release) })

	go func() { _ = m.EnsureConnected(context.Background()) }()
	require.Eventually(t, func() bool { return m.State() == Connecting }, time.Second, time.Millisecond)

	start := time.Now()
	err := m.EnsureConnected(context.Background())
	assert.ErrorIs(t, err, ErrConnectionTimeout)
	var cerr *ConnectionError
	assert.False(t, errors.As(err, &cerr))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), fc.dials.Load())
}

func TestEnsureConnected_DialIsBoundedByConnectTimeout(t *testing.T) {
	slow := ConnectorFunc(func(ctx context.Context, uri string, onLost func(error)) (Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m := NewManager(Options{
		URI:            func() (string, error) { return "mongodb://unreachable:27017", nil },
		Connector:      slow,
		ConnectTimeout: 20 * time.Millisecond,
	})

	err := m.EnsureConnected(context.Background())
	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Failed, m.State())
}

func TestEnsureConnected_InitiatorCancellationDoesNotAbortAttempt(t *testing.T) {
	fc := &fakeConnector{release: make(chan struct{})}
	m := newTestManager(fc, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- m.EnsureConnected(ctx) }()
	require.Eventually(t, func() bool { return m.State() == Connecting }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- m.EnsureConnected(context.Background()) }()
	require.Eventually(t, func() bool { return m.waiting.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(fc.release)
	assert.NoError(t, <-second)
	assert.Equal(t, Connected, m.State())
}

func TestEnsureConnected_URIErrorIsConnectionError(t *testing.T) {
	missing := errors.New("missing required environment variables: DATABASE_URI")
	fc := &fakeConnector{}
	m := NewManager(Options{
		URI:       func() (string, error) { return "", missing },
		Connector: fc,
	})

	err := m.EnsureConnected(context.Background())
	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(t, err, missing)
	assert.Equal(t, int32(0), fc.dials.Load())
	assert.Equal(t, Failed, m.State())
}

func TestEnsureConnected_ConnectorPanicMarksFailed(t *testing.T) {
	m := newTestManager(ConnectorFunc(func(ctx context.Context, uri string, onLost func(error)) (Conn, error) {
		panic("driver bug")
	}), time.Second)

	err := m.EnsureConnected(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver bug")
	assert.Equal(t, Failed, m.State())
}

func TestLostConnection_MarksDisconnectedOnceAndReconnects(t *testing.T) {
	fc := &fakeConnector{}
	m := newTestManager(fc, time.Second)
	require.NoError(t, m.EnsureConnected(context.Background()))

	lost := fc.lost()
	lost(errors.New("heartbeat failed"))
	lost(errors.New("heartbeat failed"))
	assert.Equal(t, Disconnected, m.State())
	_, err := m.Notices()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, m.Ping(context.Background()), ErrNotConnected)

	require.NoError(t, m.EnsureConnected(context.Background()))
	assert.Equal(t, int32(2), fc.dials.Load())
	assert.Equal(t, Connected, m.State())
	require.Eventually(t, func() bool { return fc.conns[0].closed.Load() }, time.Second, time.Millisecond)

	// A late event from the replaced connection is ignored.
	lost(errors.New("heartbeat failed"))
	assert.Equal(t, Connected, m.State())
}

func TestClose(t *testing.T) {
	fc := &fakeConnector{}
	m := newTestManager(fc, time.Second)
	require.NoError(t, m.Close(context.Background()))

	require.NoError(t, m.EnsureConnected(context.Background()))
	require.NoError(t, m.Close(context.Background()))
	assert.Equal(t, Disconnected, m.State())
	assert.True(t, fc.conns[0].closed.Load())
}

func TestDialer_RejectsUnknownScheme(t *testing.T) {
	_, err := Dialer{}.Connect(context.Background(), "redis://localhost:6379", nil)
	assert.ErrorContains(t, err, "unsupported database scheme")

	_, err = Dialer{}.Connect(context.Background(), "localhost", nil)
	assert.Error(t, err)
}

func TestDialer_SQLite(t *testing.T) {
	conn, err := Dialer{}.Connect(context.Background(), "sqlite://:memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	assert.Equal(t, "sqlite", conn.Host())
	assert.NoError(t, conn.Ping(context.Background()))
}

func TestDialer_AutoMigrate(t *testing.T) {
	conn, err := Dialer{AutoMigrate: true}.Connect(context.Background(), "sqlite://:memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	_, total, err := conn.Notices().List(context.Background(), domain.NoticeFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}
