package chattest

import (
	"encoding/json"
	"net/http"

	"github.com/omochice/chat-sdk/pkg/models"
)

func (s *Server) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Handle string          `json:"handle"`
		Data   json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	a, _, ok := s.caller(w, r)
	if !ok {
		return
	}
	if in.Handle == "" {
		writeError(w, http.StatusBadRequest, "handle is required")
		return
	}
	if _, taken := s.store.identities[in.Handle]; taken {
		writeError(w, http.StatusConflict, "handle %q is taken", in.Handle)
		return
	}

	id := s.store.newIdentity(a.id, in.Handle, in.Data)
	writeJSON(w, http.StatusCreated, s.store.identityDTO(id))
}

func (s *Server) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	a, _, ok := s.caller(w, r)
	if !ok {
		return
	}

	out := make([]models.IdentityDTO, 0)
	for _, id := range s.store.accountIdentities(a.id) {
		out = append(out, s.store.identityDTO(id))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, ok := s.session(w, r); !ok {
		return
	}
	handle := r.PathValue("handle")
	id, ok := s.store.identities[handle]
	if !ok {
		writeError(w, http.StatusNotFound, "identity %q not found", handle)
		return
	}
	writeJSON(w, http.StatusOK, s.store.identityDTO(id))
}

func (s *Server) handleUpdateIdentity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Data json.RawMessage `json:"data"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	id, ok := s.ownedIdentity(w, r)
	if !ok {
		return
	}
	id.data = in.Data
	id.updated = s.store.timestamp()
	writeJSON(w, http.StatusOK, s.store.identityDTO(id))
}

func (s *Server) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	id, ok := s.ownedIdentity(w, r)
	if !ok {
		return
	}
	if a := s.store.accounts[id.accountID]; a.handle == id.handle {
		writeError(w, http.StatusBadRequest, "the default identity of an account cannot be deleted")
		return
	}

	delete(s.store.identities, id.handle)
	delete(s.store.friends, id.handle)
	w.WriteHeader(http.StatusNoContent)
}

// ownedIdentity resolves the path handle and checks the session owns it.
func (s *Server) ownedIdentity(w http.ResponseWriter, r *http.Request) (*identity, bool) {
	a, _, ok := s.caller(w, r)
	if !ok {
		return nil, false
	}
	handle := r.PathValue("handle")
	id, ok := s.store.identities[handle]
	if !ok {
		writeError(w, http.StatusNotFound, "identity %q not found", handle)
		return nil, false
	}
	if id.accountID != a.id {
		writeError(w, http.StatusForbidden, "identity %q does not belong to this account", handle)
		return nil, false
	}
	return id, true
}
