package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/internal/transport/ws"
)

// Conn abstracts one inbound realtime connection.
type Conn interface {
	// Read reads a single frame. Returns io.EOF when the server closed the
	// connection.
	Read(ctx context.Context) ([]byte, error)

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens the realtime connection of one identity handle.
type Dialer interface {
	Dial(ctx context.Context, handle string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, handle string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, handle string) (Conn, error) {
	return f(ctx, handle)
}

// HandleParam is the query parameter that addresses a realtime connection.
const HandleParam = "handle"

// WebSocketDialer dials the service's realtime endpoint over WebSocket.
type WebSocketDialer struct {
	// URL is the realtime endpoint, with a ws or wss scheme.
	URL string
	// Jar supplies session cookies for the handshake. Optional.
	Jar http.CookieJar
	// Header is sent with every handshake. Optional.
	Header http.Header
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, handle string) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set(HandleParam, handle)
	u.RawQuery = q.Encode()

	header := d.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(rest.HeaderAlias, handle)

	if d.Jar != nil {
		var pairs []string
		for _, c := range d.Jar.Cookies(cookieURL(u)) {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		if len(pairs) > 0 {
			header.Set("Cookie", strings.Join(pairs, "; "))
		}
	}

	conn, err := ws.Dial(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// cookieURL maps a ws/wss URL onto the http/https URL the cookie jar knows.
func cookieURL(u *url.URL) *url.URL {
	out := *u
	switch u.Scheme {
	case "ws":
		out.Scheme = "http"
	case "wss":
		out.Scheme = "https"
	}
	return &out
}

// WebSocketURL derives the realtime endpoint from an HTTP base URL by
// switching the scheme and appending path.
func WebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.JoinPath(path).String(), nil
}
