// Package chattest runs an in-memory chat service over HTTP and websocket,
// for SDK tests and for local development against chatctl. It keeps
// accounts, identities, messages, private data and friend lists in memory
// and notifies realtime subscribers the way the real service does.
package chattest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/protocol"
)

// SessionCookie names the cookie carrying the session token.
const SessionCookie = "chat_session"

// RealtimePath is the path of the realtime endpoint.
const RealtimePath = "/realtime"

// Options configures a Server.
type Options struct {
	Logger zerolog.Logger
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Server is a running in-memory chat service.
type Server struct {
	ts    *httptest.Server
	store *store
	hub   *hub
	log   zerolog.Logger

	// rejection, when set, refuses every realtime upgrade with 401.
	rejection atomic.Pointer[string]

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a Server on a loopback address.
func New(opts Options) *Server {
	s := newServer(opts)
	s.ts = httptest.NewServer(s.routes())
	return s
}

func newServer(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		store: newStore(now),
		hub:   newHub(),
		log:   opts.Logger.With().Str("component", "chattest").Logger(),
	}
}

// Serve runs the service on l until ctx ends, then drops every realtime
// connection and returns nil.
func Serve(ctx context.Context, l net.Listener, opts Options) error {
	s := newServer(opts)
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.hub.drop("")
		_ = srv.Close()
	}()

	s.log.Info().Str("addr", l.Addr().String()).Msg("chat service listening")

	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		s.wg.Wait()
		return nil
	}
	return fmt.Errorf("serve: %w", err)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/me", s.handleMe)

	mux.HandleFunc("POST /identities", s.handleCreateIdentity)
	mux.HandleFunc("GET /identities", s.handleListIdentities)
	mux.HandleFunc("GET /identities/{handle}", s.handleGetIdentity)
	mux.HandleFunc("PATCH /identities/{handle}", s.handleUpdateIdentity)
	mux.HandleFunc("DELETE /identities/{handle}", s.handleDeleteIdentity)

	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("GET /messages", s.handleListMessages)
	mux.HandleFunc("GET /messages/{id}", s.handleGetMessage)
	mux.HandleFunc("PATCH /messages/{id}", s.handleUpdateMessage)
	mux.HandleFunc("DELETE /messages/{id}", s.handleDeleteMessage)

	mux.HandleFunc("GET /private-data", s.handleListPrivateData)
	mux.HandleFunc("GET /private-data/{entityId}", s.handleGetPrivateData)
	mux.HandleFunc("PUT /private-data/{entityId}", s.handlePutPrivateData)
	mux.HandleFunc("DELETE /private-data/{entityId}", s.handleDeletePrivateData)

	mux.HandleFunc("GET /friends", s.handleListFriends)
	mux.HandleFunc("POST /friends", s.handleAddFriend)
	mux.HandleFunc("DELETE /friends/{handle}", s.handleRemoveFriend)

	mux.HandleFunc("GET "+RealtimePath, s.handleRealtime)

	return mux
}

// URL returns the base URL of the HTTP endpoints.
func (s *Server) URL() string {
	return s.ts.URL
}

// RealtimeURL returns the websocket URL of the realtime endpoint.
func (s *Server) RealtimeURL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + RealtimePath
}

// Close drops every realtime connection and stops the server.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.hub.drop("")
		s.ts.Close()
		s.wg.Wait()
	})
}

// Subscribers returns the number of open realtime connections of handle.
func (s *Server) Subscribers(handle string) int {
	return s.hub.count(handle)
}

// Push sends frame to every subscriber of handle and returns how many
// received it.
func (s *Server) Push(handle string, frame protocol.Frame) (int, error) {
	data, err := frame.Encode()
	if err != nil {
		return 0, err
	}
	return s.hub.notify(handle, data), nil
}

// PushRaw sends data verbatim to every subscriber of handle.
func (s *Server) PushRaw(handle string, data []byte) int {
	return s.hub.notify(handle, data)
}

// Drop closes the realtime connections of handle from the server side.
func (s *Server) Drop(handle string) {
	s.hub.drop(handle)
}

// RejectRealtime makes later realtime upgrades fail with 401 and reason.
// An empty reason accepts upgrades again.
func (s *Server) RejectRealtime(reason string) {
	if reason == "" {
		s.rejection.Store(nil)
		return
	}
	s.rejection.Store(&reason)
}

func (s *Server) notify(handles []string, ft protocol.FrameType, messageID string) {
	data, err := protocol.Frame{Type: ft, MessageID: messageID}.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("encode frame")
		return
	}
	for _, h := range handles {
		n := s.hub.notify(h, data)
		s.log.Debug().Str("handle", h).Str("type", ft.String()).Int("delivered", n).Msg("notify")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"message": fmt.Sprintf(format, args...)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

// session returns the account of the request's session cookie. Callers hold
// s.store.mu.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*account, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return nil, false
	}
	a, ok := s.store.accounts[s.store.sessions[c.Value]]
	if !ok {
		writeError(w, http.StatusUnauthorized, "session expired")
		return nil, false
	}
	return a, true
}

// caller resolves the acting identity from the alias header. Callers hold
// s.store.mu.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (*account, *identity, bool) {
	a, ok := s.session(w, r)
	if !ok {
		return nil, nil, false
	}
	handle := r.Header.Get(rest.HeaderAlias)
	if handle == "" {
		writeError(w, http.StatusBadRequest, "missing %s header", rest.HeaderAlias)
		return nil, nil, false
	}
	if !s.store.owns(a.id, handle) {
		writeError(w, http.StatusForbidden, "identity %q does not belong to this account", handle)
		return nil, nil, false
	}
	return a, s.store.identities[handle], true
}
