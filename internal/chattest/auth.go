package chattest

import (
	"net/http"

	"github.com/google/uuid"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Email == "" || in.Handle == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "email, handle and password are required")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if s.store.accountByEmail(in.Email) != nil {
		writeError(w, http.StatusConflict, "email %q is already registered", in.Email)
		return
	}
	if _, taken := s.store.identities[in.Handle]; taken {
		writeError(w, http.StatusConflict, "handle %q is taken", in.Handle)
		return
	}

	a := &account{
		id:       uuid.NewString(),
		email:    in.Email,
		password: in.Password,
		handle:   in.Handle,
		created:  s.store.timestamp(),
	}
	s.store.accounts[a.id] = a
	s.store.newIdentity(a.id, a.handle, nil)

	s.log.Debug().Str("handle", a.handle).Msg("signup")
	writeJSON(w, http.StatusCreated, s.store.accountDTO(a))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	a := s.store.accountByEmail(in.Email)
	if a == nil || a.password != in.Password {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token := uuid.NewString()
	s.store.sessions[token] = a.id
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})

	s.log.Debug().Str("handle", a.handle).Msg("login")
	writeJSON(w, http.StatusOK, s.store.accountDTO(a))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, ok := s.session(w, r); !ok {
		return
	}
	c, _ := r.Cookie(SessionCookie)
	delete(s.store.sessions, c.Value)

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	a, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.store.accountDTO(a))
}
