package realtime_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/chat-sdk/pkg/events"
	"github.com/omochice/chat-sdk/pkg/realtime"
)

// mockConn is a mock implementation of realtime.Conn for testing.
type mockConn struct {
	frames    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closed:
		return nil, io.ErrClosedPipe
	case data, ok := <-m.frames:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return "mock"
}

func (m *mockConn) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// send pushes a raw frame to the manager.
func (m *mockConn) send(frame string) {
	m.frames <- []byte(frame)
}

// drop simulates the server closing the connection.
func (m *mockConn) drop() {
	close(m.frames)
}

// Compile-time check that mockConn implements realtime.Conn
var _ realtime.Conn = (*mockConn)(nil)

// mockDialer hands out mockConns, optionally blocking until released.
type mockDialer struct {
	mu    sync.Mutex
	calls atomic.Int32
	conns []*mockConn
	gate  chan struct{}
	err   error
}

func (d *mockDialer) Dial(ctx context.Context, handle string) (realtime.Conn, error) {
	d.calls.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	c := newMockConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *mockDialer) conn(i int) *mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// rejectErr mimics a handshake refused by the server.
type rejectErr struct {
	status int
	reason string
}

func (e *rejectErr) Error() string      { return e.reason }
func (e *rejectErr) Unauthorized() bool { return e.status == 401 || e.status == 403 }
func (e *rejectErr) Reason() string     { return e.reason }

func newManager(d realtime.Dialer) (*realtime.Manager, *events.Hub) {
	hub := events.NewHub()
	m := realtime.NewManager(d, hub, realtime.Options{
		DialTimeout: time.Second,
		Logger:      zerolog.Nop(),
	})
	return m, hub
}

func waitForState(t *testing.T, m *realtime.Manager, handle string, want realtime.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State(handle) == want
	}, time.Second, 5*time.Millisecond, "handle %q never reached %s", handle, want)
}

func TestManager_SubscribeOpens(t *testing.T) {
	d := &mockDialer{}
	m, _ := newManager(d)
	defer m.Close()

	assert.Equal(t, realtime.StateUnsubscribed, m.State("alice"))

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	assert.Equal(t, realtime.StateOpen, m.State("alice"))
	assert.Equal(t, []string{"alice"}, m.Handles())

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	assert.EqualValues(t, 1, d.calls.Load(), "subscribing an open handle must not dial")
}

func TestManager_ConcurrentSubscribeCoalesces(t *testing.T) {
	d := &mockDialer{gate: make(chan struct{})}
	m, _ := newManager(d)
	defer m.Close()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- m.Subscribe(context.Background(), "alice")
		}()
	}

	waitForState(t, m, "alice", realtime.StateConnecting)
	time.Sleep(50 * time.Millisecond)
	close(d.gate)

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for subscribers")
		}
	}

	assert.EqualValues(t, 1, d.calls.Load())
	assert.Equal(t, realtime.StateOpen, m.State("alice"))
}

func TestManager_ConcurrentSubscribeFailsTogether(t *testing.T) {
	d := &mockDialer{gate: make(chan struct{}), err: errors.New("connection refused")}
	m, _ := newManager(d)
	defer m.Close()

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- m.Subscribe(context.Background(), "alice")
		}()
	}

	waitForState(t, m, "alice", realtime.StateConnecting)
	time.Sleep(50 * time.Millisecond)
	close(d.gate)

	for i := 0; i < n; i++ {
		err := <-errs
		require.Error(t, err)
		assert.ErrorIs(t, err, realtime.ErrConnection)
		assert.NotErrorIs(t, err, realtime.ErrUnauthorized)
	}

	assert.EqualValues(t, 1, d.calls.Load())
	assert.Equal(t, realtime.StateUnsubscribed, m.State("alice"))
}

func TestManager_SubscribeAfterFailureRetries(t *testing.T) {
	d := &mockDialer{err: errors.New("boom")}
	m, _ := newManager(d)
	defer m.Close()

	require.Error(t, m.Subscribe(context.Background(), "alice"))

	d.err = nil
	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	assert.EqualValues(t, 2, d.calls.Load())
}

func TestManager_UnauthorizedHandshake(t *testing.T) {
	d := &mockDialer{err: &rejectErr{status: 401, reason: "session expired"}}
	m, hub := newManager(d)
	defer m.Close()

	var got []events.AuthErrorEvent
	hub.AuthError.Subscribe(func(ev events.AuthErrorEvent) { got = append(got, ev) })

	err := m.Subscribe(context.Background(), "alice")

	var connErr *realtime.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, connErr.Unauthorized)
	assert.ErrorIs(t, err, realtime.ErrUnauthorized)
	assert.ErrorIs(t, err, realtime.ErrConnection)
	assert.Equal(t, []events.AuthErrorEvent{{Message: "session expired", Handle: "alice"}}, got)
}

func TestManager_UnsubscribeIdempotent(t *testing.T) {
	d := &mockDialer{}
	m, _ := newManager(d)
	defer m.Close()

	assert.NoError(t, m.Unsubscribe(context.Background(), "nobody"))

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	require.NoError(t, m.Unsubscribe(context.Background(), "alice"))
	require.NoError(t, m.Unsubscribe(context.Background(), "alice"))

	assert.Equal(t, realtime.StateUnsubscribed, m.State("alice"))
	assert.True(t, d.conn(0).isClosed())
}

func TestManager_UnsubscribeWhileConnecting(t *testing.T) {
	d := &mockDialer{gate: make(chan struct{})}
	m, _ := newManager(d)
	defer m.Close()

	subErr := make(chan error, 1)
	go func() { subErr <- m.Subscribe(context.Background(), "alice") }()

	waitForState(t, m, "alice", realtime.StateConnecting)

	unsubDone := make(chan error, 1)
	go func() { unsubDone <- m.Unsubscribe(context.Background(), "alice") }()

	time.Sleep(20 * time.Millisecond)
	close(d.gate)

	require.NoError(t, <-unsubDone)
	assert.ErrorIs(t, <-subErr, realtime.ErrSubscriptionCanceled)
	assert.Equal(t, realtime.StateUnsubscribed, m.State("alice"))
	assert.True(t, d.conn(0).isClosed(), "dialled connection must not dangle")
}

func TestManager_FrameMapping(t *testing.T) {
	d := &mockDialer{}
	m, hub := newManager(d)
	defer m.Close()

	var mu sync.Mutex
	var msgs []events.MessageEvent
	var auths []events.AuthErrorEvent
	hub.OnMessages(func(ev events.MessageEvent) {
		mu.Lock()
		msgs = append(msgs, ev)
		mu.Unlock()
	})
	hub.AuthError.Subscribe(func(ev events.AuthErrorEvent) {
		mu.Lock()
		auths = append(auths, ev)
		mu.Unlock()
	})

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	conn := d.conn(0)

	conn.send(`{"type":"new_message","messageId":"m1"}`)
	conn.send(`{"type":"message_update","messageId":"m2"}`)
	conn.send(`{"type":"message_delete","messageId":"m3"}`)
	conn.send(`{"type":"unauthorized","message":"stale session"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(msgs) == 3 && len(auths) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []events.MessageEvent{
		{Kind: events.KindMessage, MessageID: "m1", Handle: "alice"},
		{Kind: events.KindMessageUpdate, MessageID: "m2", Handle: "alice"},
		{Kind: events.KindMessageDeletion, MessageID: "m3", Handle: "alice"},
	}, msgs)
	assert.Equal(t, []events.AuthErrorEvent{{Message: "stale session", Handle: "alice"}}, auths)
}

func TestManager_IgnoresUnknownAndMalformedFrames(t *testing.T) {
	d := &mockDialer{}
	m, hub := newManager(d)
	defer m.Close()

	var count atomic.Int32
	hub.OnMessages(func(events.MessageEvent) { count.Add(1) })
	hub.AuthError.Subscribe(func(events.AuthErrorEvent) { count.Add(1) })

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	conn := d.conn(0)

	conn.send(`{"type":"typing","handle":"bob"}`)
	conn.send(`{not json`)
	conn.send(`{"type":"new_message"}`)
	conn.send(`{"type":"new_message","messageId":"after"}`)

	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, count.Load(), "only the valid frame produces an event")
	assert.Equal(t, realtime.StateOpen, m.State("alice"))
}

func TestManager_ReconnectAfterDrop(t *testing.T) {
	d := &mockDialer{}
	m, _ := newManager(d)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	d.conn(0).drop()

	waitForState(t, m, "alice", realtime.StateUnsubscribed)
	assert.EqualValues(t, 1, d.calls.Load(), "no automatic reconnect")

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	assert.Equal(t, realtime.StateOpen, m.State("alice"))
	assert.EqualValues(t, 2, d.calls.Load())
	assert.False(t, d.conn(1).isClosed())
}

func TestManager_IndependentHandles(t *testing.T) {
	d := &mockDialer{}
	m, _ := newManager(d)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), "bob"))
	require.NoError(t, m.Subscribe(context.Background(), "alice"))

	assert.Equal(t, []string{"alice", "bob"}, m.Handles())
	assert.EqualValues(t, 2, d.calls.Load())

	require.NoError(t, m.Unsubscribe(context.Background(), "alice"))
	assert.Equal(t, []string{"bob"}, m.Handles())
}

func TestManager_SubscribeHonoursContext(t *testing.T) {
	d := &mockDialer{gate: make(chan struct{})}
	m, _ := newManager(d)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Subscribe(ctx, "alice")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(d.gate)
	waitForState(t, m, "alice", realtime.StateOpen)
}

func TestManager_Close(t *testing.T) {
	d := &mockDialer{}
	m, _ := newManager(d)

	require.NoError(t, m.Subscribe(context.Background(), "alice"))
	require.NoError(t, m.Subscribe(context.Background(), "bob"))

	require.NoError(t, m.Close())

	assert.Empty(t, m.Handles())
	assert.True(t, d.conn(0).isClosed())
	assert.True(t, d.conn(1).isClosed())
	assert.ErrorIs(t, m.Subscribe(context.Background(), "alice"), realtime.ErrClosed)
}

func TestManager_UnsubscribeAllCancelsPending(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	conns := make(map[string]*mockConn)
	d := realtime.DialerFunc(func(ctx context.Context, handle string) (realtime.Conn, error) {
		if handle == "bob" {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		c := newMockConn()
		mu.Lock()
		conns[handle] = c
		mu.Unlock()
		return c, nil
	})
	m, _ := newManager(d)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), "alice"))

	subErr := make(chan error, 1)
	go func() { subErr <- m.Subscribe(context.Background(), "bob") }()
	waitForState(t, m, "bob", realtime.StateConnecting)
	assert.Equal(t, []string{"alice"}, m.Handles())

	done := make(chan error, 1)
	go func() { done <- m.UnsubscribeAll(context.Background()) }()

	waitForState(t, m, "alice", realtime.StateUnsubscribed)
	time.Sleep(20 * time.Millisecond)
	close(gate)

	require.NoError(t, <-done)
	assert.ErrorIs(t, <-subErr, realtime.ErrSubscriptionCanceled)
	assert.Equal(t, realtime.StateUnsubscribed, m.State("bob"))
	assert.Empty(t, m.Handles())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, conns, 2)
	assert.True(t, conns["alice"].isClosed())
	assert.True(t, conns["bob"].isClosed(), "connection opened after unsubscribe must be closed")
}

func TestManager_SubscribeRequiresHandle(t *testing.T) {
	m, _ := newManager(&mockDialer{})
	defer m.Close()

	require.Error(t, m.Subscribe(context.Background(), ""))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unsubscribed", realtime.StateUnsubscribed.String())
	assert.Equal(t, "connecting", realtime.StateConnecting.String())
	assert.Equal(t, "open", realtime.StateOpen.String())
	assert.Equal(t, "unknown", realtime.State(9).String())
}
