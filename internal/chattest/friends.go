package chattest

import (
	"net/http"
	"slices"

	"github.com/omochice/chat-sdk/pkg/models"
)

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	_, caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	handles := make([]string, 0, len(s.store.friends[caller.handle]))
	for h := range s.store.friends[caller.handle] {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	out := make([]models.IdentityDTO, 0, len(handles))
	for _, h := range handles {
		if id, ok := s.store.identities[h]; ok {
			out = append(out, s.store.identityDTO(id))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Handle string `json:"handle"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	_, caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	friend, ok := s.store.identities[in.Handle]
	if !ok {
		writeError(w, http.StatusNotFound, "identity %q not found", in.Handle)
		return
	}
	if friend.handle == caller.handle {
		writeError(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}

	set := s.store.friends[caller.handle]
	if set == nil {
		set = make(map[string]bool)
		s.store.friends[caller.handle] = set
	}
	set[friend.handle] = true

	writeJSON(w, http.StatusOK, s.store.identityDTO(friend))
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	_, caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	handle := r.PathValue("handle")
	if !s.store.friends[caller.handle][handle] {
		writeError(w, http.StatusNotFound, "%q is not a friend", handle)
		return
	}
	delete(s.store.friends[caller.handle], handle)
	w.WriteHeader(http.StatusNoContent)
}
