// Package ws provides the WebSocket client transport for the realtime channel.
package ws

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const maxHandshakeBody = 4 << 10

// HandshakeError is returned by Dial when the server answers the upgrade
// request with a non-101 status.
type HandshakeError struct {
	Status  int
	Message string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected with status %d: %s", e.Status, e.Message)
}

// Reason returns the server-provided explanation.
func (e *HandshakeError) Reason() string {
	return e.Message
}

// Unauthorized reports whether the server refused the caller's credentials.
func (e *HandshakeError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Conn is a client-side WebSocket connection.
type Conn struct {
	conn       net.Conn
	reader     io.Reader
	writer     *lockedWriter
	remoteAddr string
	closeOnce  sync.Once
	closeErr   error
}

// lockedWriter serialises writes from the read loop (pong replies) and Close.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Dial opens a WebSocket connection to rawURL, sending header with the
// upgrade request.
func Dial(ctx context.Context, rawURL string, header http.Header) (*Conn, error) {
	var rejected *HandshakeError

	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(header),
		OnStatusError: func(status int, reason []byte, resp io.Reader) {
			rejected = &HandshakeError{Status: status, Message: readRejection(status, reason, resp)}
		},
	}

	conn, br, _, err := dialer.Dial(ctx, rawURL)
	if err != nil {
		if rejected != nil {
			return nil, rejected
		}
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}

	c := &Conn{
		conn:       conn,
		reader:     conn,
		writer:     &lockedWriter{w: conn},
		remoteAddr: conn.RemoteAddr().String(),
	}
	// Frames sent right after the handshake may already sit in br.
	if br != nil {
		c.reader = br
	}
	return c, nil
}

// readRejection extracts a human-readable reason from a rejected handshake.
// A JSON body of the form {"message": "..."} wins over the status line.
func readRejection(status int, reason []byte, raw io.Reader) string {
	fallback := strings.TrimSpace(string(reason))
	if fallback == "" {
		fallback = http.StatusText(status)
	}

	resp, err := http.ReadResponse(bufio.NewReader(raw), nil)
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()

	if resp.ContentLength < 0 || resp.ContentLength > maxHandshakeBody {
		return fallback
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fallback
	}

	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}

// Read reads the next data frame sent by the server. Ping frames are
// answered and a close frame surfaces as io.EOF. Cancelling ctx interrupts
// the read and leaves the connection unusable.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_ = c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	rw := struct {
		io.Reader
		io.Writer
	}{c.reader, c.writer}

	data, _, err := wsutil.ReadServerData(rw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Close sends a normal-closure frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteClientMessage(c.writer, ws.OpClose, body)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the server address for logging.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
