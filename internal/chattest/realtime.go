package chattest

import (
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// handleRealtime upgrades to a websocket that receives the notifications of
// the handle query parameter. The session must own the handle.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")

	if reason := s.rejection.Load(); reason != nil {
		writeError(w, http.StatusUnauthorized, "%s", *reason)
		return
	}

	s.store.mu.Lock()
	a, ok := s.session(w, r)
	if ok && !s.store.owns(a.id, handle) {
		writeError(w, http.StatusUnauthorized, "identity %q does not belong to this account", handle)
		ok = false
	}
	s.store.mu.Unlock()
	if !ok {
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	sub := &subscriber{
		id:       uuid.NewString(),
		handle:   handle,
		conn:     conn,
		outgoing: make(chan []byte, 16),
	}
	s.hub.register(sub)

	log := s.log.With().Str("handle", handle).Str("conn_id", sub.id).Logger()
	log.Debug().Msg("realtime subscriber connected")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for data := range sub.outgoing {
			if err := sub.write(ws.OpText, data); err != nil {
				log.Debug().Err(err).Msg("failed to send frame")
				return
			}
		}
	}()

	// The client never sends data frames; reading only detects the close.
	for {
		if _, _, err := wsutil.ReadClientData(conn); err != nil {
			break
		}
	}

	s.hub.unregister(sub)
	_ = conn.Close()
	log.Debug().Msg("realtime subscriber disconnected")
}
