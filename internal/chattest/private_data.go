package chattest

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/omochice/chat-sdk/pkg/models"
)

func (s *Server) handleListPrivateData(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	_, caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	out := make([]models.PrivateDataDTO, 0)
	for _, rec := range s.store.records(caller.handle) {
		out = append(out, s.store.recordDTO(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPrivateData(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	rec, _, ok := s.privateRecord(w, r)
	if !ok {
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no private data for %q", r.PathValue("entityId"))
		return
	}
	writeJSON(w, http.StatusOK, s.store.recordDTO(rec))
}

func (s *Server) handlePutPrivateData(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Data json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	rec, key, ok := s.privateRecord(w, r)
	if !ok {
		return
	}

	now := s.store.timestamp()
	if rec == nil {
		rec = &record{id: uuid.NewString(), entity: key.entity, created: now}
		s.store.privateData[key] = rec
	}
	rec.data = in.Data
	rec.updated = now

	writeJSON(w, http.StatusOK, s.store.recordDTO(rec))
}

func (s *Server) handleDeletePrivateData(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	rec, key, ok := s.privateRecord(w, r)
	if !ok {
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no private data for %q", key.entity)
		return
	}
	delete(s.store.privateData, key)
	w.WriteHeader(http.StatusNoContent)
}

// privateRecord returns the caller's record for the path entity, nil when
// there is none.
func (s *Server) privateRecord(w http.ResponseWriter, r *http.Request) (*record, privateKey, bool) {
	_, caller, ok := s.caller(w, r)
	if !ok {
		return nil, privateKey{}, false
	}
	key := privateKey{owner: caller.handle, entity: r.PathValue("entityId")}
	return s.store.privateData[key], key, true
}
