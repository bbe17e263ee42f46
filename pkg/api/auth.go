package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hay-kot/criterio"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/models"
)

// SignupInput creates an account together with its default identity.
type SignupInput struct {
	Email    string `json:"email"`
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// LoginInput opens a session.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Auth wraps the account and session endpoints.
type Auth struct {
	r Requester
}

// NewAuth creates the Auth endpoint.
func NewAuth(r Requester) *Auth {
	return &Auth{r: r}
}

// Signup creates an account. It does not log in.
func (a *Auth) Signup(ctx context.Context, in SignupInput) (models.Account, error) {
	var errs criterio.FieldErrorsBuilder
	errs = requireField(errs, "email", in.Email)
	errs = requireField(errs, "handle", in.Handle)
	errs = requireField(errs, "password", in.Password)
	if err := validationError(errs.ToError()); err != nil {
		return models.Account{}, err
	}

	return a.account(ctx, rest.Request{Method: http.MethodPost, Path: "/auth/signup", Body: in})
}

// Login opens a session for the account identified by email.
func (a *Auth) Login(ctx context.Context, in LoginInput) (models.Account, error) {
	var errs criterio.FieldErrorsBuilder
	errs = requireField(errs, "email", in.Email)
	errs = requireField(errs, "password", in.Password)
	if err := validationError(errs.ToError()); err != nil {
		return models.Account{}, err
	}

	return a.account(ctx, rest.Request{Method: http.MethodPost, Path: "/auth/login", Body: in})
}

// Logout ends the current session.
func (a *Auth) Logout(ctx context.Context) error {
	if err := a.r.Do(ctx, rest.Request{Method: http.MethodPost, Path: "/auth/logout"}, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Me returns the account of the current session.
func (a *Auth) Me(ctx context.Context) (models.Account, error) {
	return a.account(ctx, rest.Request{Method: http.MethodGet, Path: "/auth/me"})
}

func (a *Auth) account(ctx context.Context, req rest.Request) (models.Account, error) {
	var dto models.AccountDTO
	if err := a.r.Do(ctx, req, &dto); err != nil {
		return models.Account{}, err
	}
	return models.DecodeAccount(dto)
}
