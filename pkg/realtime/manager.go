// Package realtime maintains at most one live notification connection per
// identity handle and turns inbound frames into typed events.
//
// Each handle moves through three states:
//
//	Unsubscribed --Subscribe--> Connecting --handshake ok--> Open
//	     ^                          |                          |
//	     +------ handshake failed --+                          |
//	     +------ Unsubscribe / remote close -------------------+
//
// Concurrent Subscribe calls for a handle share a single connection attempt
// and all observe its outcome. A dropped connection is never re-established
// automatically; the caller subscribes again.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/omochice/chat-sdk/pkg/events"
	"github.com/omochice/chat-sdk/pkg/protocol"
)

// State is the connection state of one handle.
type State int

const (
	StateUnsubscribed State = iota
	StateConnecting
	StateOpen
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	// ErrConnection is wrapped by every connection establishment failure.
	ErrConnection = errors.New("realtime connection failed")
	// ErrUnauthorized is additionally wrapped when the server rejected the
	// handshake for lack of authorization.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSubscriptionCanceled is returned to subscribers whose connection
	// attempt was canceled by Unsubscribe.
	ErrSubscriptionCanceled = errors.New("subscription canceled")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("realtime manager closed")
)

// ConnectionError reports a failed connection attempt for Handle.
type ConnectionError struct {
	Handle       string
	Unauthorized bool
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("realtime connection for %q failed: %v", e.Handle, e.Err)
}

// Unwrap exposes ErrConnection, ErrUnauthorized when applicable, and the cause.
func (e *ConnectionError) Unwrap() []error {
	errs := []error{ErrConnection, e.Err}
	if e.Unauthorized {
		errs = append(errs, ErrUnauthorized)
	}
	return errs
}

// rejection is implemented by dial errors that carry a server verdict,
// such as a handshake refused with 401.
type rejection interface {
	error
	Unauthorized() bool
	Reason() string
}

// DefaultDialTimeout bounds a connection attempt when Options.DialTimeout is zero.
const DefaultDialTimeout = 10 * time.Second

// Options configures a Manager.
type Options struct {
	DialTimeout time.Duration
	Logger      zerolog.Logger
}

// Manager owns the realtime connections of every subscribed handle.
type Manager struct {
	dialer      Dialer
	hub         *events.Hub
	dialTimeout time.Duration
	log         zerolog.Logger

	// group coalesces concurrent connection attempts per handle.
	group singleflight.Group

	mu       sync.Mutex
	conns    map[string]*connection
	attempts map[string]*attempt
	closed   bool
}

// attempt marks a handle as Connecting.
type attempt struct {
	canceled bool
	done     chan struct{}
}

// connection is an Open handle with its read loop.
type connection struct {
	id     string
	handle string
	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager that dials with dialer and publishes on hub.
func NewManager(dialer Dialer, hub *events.Hub, opts Options) *Manager {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Manager{
		dialer:      dialer,
		hub:         hub,
		dialTimeout: timeout,
		log:         opts.Logger.With().Str("component", "realtime").Logger(),
		conns:       make(map[string]*connection),
		attempts:    make(map[string]*attempt),
	}
}

// State returns the current state of handle.
func (m *Manager) State(handle string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[handle]; ok {
		return StateOpen
	}
	if _, ok := m.attempts[handle]; ok {
		return StateConnecting
	}
	return StateUnsubscribed
}

// Handles returns the handles with an open connection, sorted.
func (m *Manager) Handles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.conns))
	for h := range m.conns {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Subscribe ensures handle has an open connection. It returns nil once the
// connection is open, joining an attempt already in flight. If ctx ends
// first, Subscribe returns ctx.Err() and the attempt carries on.
func (m *Manager) Subscribe(ctx context.Context, handle string) error {
	if handle == "" {
		return fmt.Errorf("subscribe: handle is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.conns[handle]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan(handle, func() (any, error) {
		return nil, m.connect(handle)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connect runs at most once at a time per handle.
func (m *Manager) connect(handle string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.conns[handle]; ok {
		m.mu.Unlock()
		return nil
	}
	att := &attempt{done: make(chan struct{})}
	m.attempts[handle] = att
	m.mu.Unlock()
	defer close(att.done)

	log := m.log.With().Str("handle", handle).Logger()
	log.Debug().Msg("connecting")

	dialCtx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
	conn, err := m.dialer.Dial(dialCtx, handle)
	cancel()

	m.mu.Lock()
	delete(m.attempts, handle)

	if err != nil {
		m.mu.Unlock()
		return m.connectFailed(log, handle, err)
	}

	if att.canceled || m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		log.Debug().Msg("connection attempt canceled")
		return ErrSubscriptionCanceled
	}

	ctx, stop := context.WithCancel(context.Background())
	c := &connection{
		id:     uuid.NewString(),
		handle: handle,
		conn:   conn,
		ctx:    ctx,
		cancel: stop,
		done:   make(chan struct{}),
	}
	m.conns[handle] = c
	m.mu.Unlock()

	log.Info().Str("conn_id", c.id).Str("remote", conn.RemoteAddr()).Msg("realtime connection open")

	go m.readLoop(c)
	return nil
}

func (m *Manager) connectFailed(log zerolog.Logger, handle string, err error) error {
	connErr := &ConnectionError{Handle: handle, Err: err}

	var rej rejection
	if errors.As(err, &rej) && rej.Unauthorized() {
		connErr.Unauthorized = true
		m.hub.AuthError.Publish(events.AuthErrorEvent{Message: rej.Reason(), Handle: handle})
	}

	log.Warn().Err(err).Bool("unauthorized", connErr.Unauthorized).Msg("realtime connection failed")
	return connErr
}

// Unsubscribe closes the connection of handle. It is a no-op when handle is
// not subscribed. A connection attempt in flight is canceled and Unsubscribe
// waits, bounded by ctx, until the attempt has released its connection.
func (m *Manager) Unsubscribe(ctx context.Context, handle string) error {
	m.mu.Lock()
	if c, ok := m.conns[handle]; ok {
		delete(m.conns, handle)
		m.mu.Unlock()

		err := c.close()
		m.log.Info().Str("handle", handle).Str("conn_id", c.id).Msg("realtime connection closed")
		if err != nil {
			m.log.Debug().Err(err).Str("handle", handle).Msg("close returned error")
		}
		return nil
	}

	att, ok := m.attempts[handle]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	att.canceled = true
	m.mu.Unlock()

	select {
	case <-att.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnsubscribeAll unsubscribes every handle that is open or still connecting.
func (m *Manager) UnsubscribeAll(ctx context.Context) error {
	m.mu.Lock()
	handles := make([]string, 0, len(m.conns)+len(m.attempts))
	for h := range m.conns {
		handles = append(handles, h)
	}
	for h := range m.attempts {
		if _, ok := m.conns[h]; !ok {
			handles = append(handles, h)
		}
	}
	m.mu.Unlock()
	slices.Sort(handles)

	var errs []error
	for _, h := range handles {
		if err := m.Unsubscribe(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %q: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

// Close unsubscribes every handle, waits for the read loops to finish and
// rejects later subscriptions. It must not be called from an event listener.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	clear(m.conns)
	pending := make([]*attempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		a.canceled = true
		pending = append(pending, a)
	}
	m.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.handle, err))
		}
		<-c.done
	}
	for _, a := range pending {
		<-a.done
	}
	return errors.Join(errs...)
}

// close stops the read loop and closes the transport.
func (c *connection) close() error {
	c.cancel()
	return c.conn.Close()
}

// readLoop dispatches frames until the connection ends.
func (m *Manager) readLoop(c *connection) {
	defer close(c.done)

	log := m.log.With().Str("handle", c.handle).Str("conn_id", c.id).Logger()

	for {
		data, err := c.conn.Read(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			m.dropped(log, c, err)
			return
		}
		m.dispatch(log, c.handle, data)
	}
}

// dropped handles a connection ended by the remote side.
func (m *Manager) dropped(log zerolog.Logger, c *connection, err error) {
	m.mu.Lock()
	if m.conns[c.handle] == c {
		delete(m.conns, c.handle)
	}
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close()
	log.Info().Err(err).Msg("realtime connection dropped")
}

// dispatch publishes the event for one frame. Frames that cannot be decoded
// are logged and skipped; they never end the connection.
func (m *Manager) dispatch(log zerolog.Logger, handle string, data []byte) {
	frame, err := protocol.Decode(data)
	switch {
	case errors.Is(err, protocol.ErrUnknownFrameType):
		log.Debug().Err(err).Msg("ignoring frame")
		return
	case err != nil:
		log.Warn().Err(err).Int("size", len(data)).Msg("dropping malformed frame")
		return
	}

	switch frame.Type {
	case protocol.FrameTypeUnauthorized:
		m.hub.AuthError.Publish(events.AuthErrorEvent{Message: frame.Message, Handle: handle})
	case protocol.FrameTypeNewMessage, protocol.FrameTypeMessageUpdate, protocol.FrameTypeMessageDelete:
		kind := messageKind(frame.Type)
		m.hub.MessageTopic(kind).Publish(events.MessageEvent{
			Kind:      kind,
			MessageID: frame.MessageID,
			Handle:    handle,
		})
	}
}

func messageKind(ft protocol.FrameType) events.Kind {
	switch ft {
	case protocol.FrameTypeMessageUpdate:
		return events.KindMessageUpdate
	case protocol.FrameTypeMessageDelete:
		return events.KindMessageDeletion
	default:
		return events.KindMessage
	}
}
