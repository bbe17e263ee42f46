package chattest

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/models"
	"github.com/omochice/chat-sdk/pkg/protocol"
)

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Recipients []string        `json:"recipients"`
		Data       json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	_, sender, ok := s.caller(w, r)
	if !ok {
		return
	}
	if len(in.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}

	var recipients []string
	for _, h := range in.Recipients {
		if _, ok := s.store.identities[h]; !ok {
			writeError(w, http.StatusNotFound, "identity %q not found", h)
			return
		}
		if !slices.Contains(recipients, h) {
			recipients = append(recipients, h)
		}
	}

	now := s.store.timestamp()
	m := &message{
		id:         uuid.NewString(),
		sender:     sender.handle,
		recipients: recipients,
		data:       in.Data,
		created:    now,
		updated:    now,
	}
	s.store.messages = append(s.store.messages, m)

	s.notify(m.recipients, protocol.FrameTypeNewMessage, m.id)
	writeJSON(w, http.StatusCreated, s.store.messageDTO(m))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: %v", err)
			return
		}
		since = t
	}
	var interlocutors []string
	if raw := r.URL.Query().Get("interlocutors"); raw != "" {
		interlocutors = strings.Split(raw, ",")
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	_, caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	out := make([]models.MessageDTO, 0)
	for _, m := range s.store.messages {
		if !m.visibleTo(caller.handle) || m.created.Before(since) {
			continue
		}
		if len(interlocutors) > 0 && !slices.ContainsFunc(m.participants(), func(h string) bool {
			return slices.Contains(interlocutors, h)
		}) {
			continue
		}
		out = append(out, s.store.messageDTO(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	m, ok := s.visibleMessage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.messageDTO(m))
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Data json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	m, ok := s.sentMessage(w, r)
	if !ok {
		return
	}
	m.data = in.Data
	m.updated = s.store.timestamp()

	s.notify(m.recipients, protocol.FrameTypeMessageUpdate, m.id)
	writeJSON(w, http.StatusOK, s.store.messageDTO(m))
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	m, ok := s.sentMessage(w, r)
	if !ok {
		return
	}
	_, i := s.store.message(m.id)
	s.store.messages = slices.Delete(s.store.messages, i, i+1)

	s.notify(m.recipients, protocol.FrameTypeMessageDelete, m.id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) visibleMessage(w http.ResponseWriter, r *http.Request) (*message, bool) {
	_, caller, ok := s.caller(w, r)
	if !ok {
		return nil, false
	}
	id := r.PathValue("id")
	m, _ := s.store.message(id)
	if m == nil || !m.visibleTo(caller.handle) {
		writeError(w, http.StatusNotFound, "message %q not found", id)
		return nil, false
	}
	return m, true
}

// sentMessage resolves a message the caller may modify.
func (s *Server) sentMessage(w http.ResponseWriter, r *http.Request) (*message, bool) {
	m, ok := s.visibleMessage(w, r)
	if !ok {
		return nil, false
	}
	if m.sender != r.Header.Get(rest.HeaderAlias) {
		writeError(w, http.StatusForbidden, "only the sender may modify a message")
		return nil, false
	}
	return m, true
}
