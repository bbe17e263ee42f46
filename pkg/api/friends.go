package api

import (
	"context"
	"net/http"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/models"
)

// Friends wraps the friend list of an identity.
type Friends struct {
	r Requester
}

// NewFriends creates the Friends endpoint.
func NewFriends(r Requester) *Friends {
	return &Friends{r: r}
}

// List returns the friends of caller.
func (f *Friends) List(ctx context.Context, caller string) ([]models.Identity, error) {
	var dtos []models.IdentityDTO
	if err := f.r.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/friends", Handle: caller}, &dtos); err != nil {
		return nil, err
	}
	return models.DecodeIdentities(dtos)
}

// Add befriends handle and returns its identity.
func (f *Friends) Add(ctx context.Context, caller, handle string) (models.Identity, error) {
	if err := requireHandle(handle); err != nil {
		return models.Identity{}, err
	}

	var dto models.IdentityDTO
	err := f.r.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/friends",
		Handle: caller,
		Body:   struct {
			Handle string `json:"handle"`
		}{Handle: handle},
	}, &dto)
	if err != nil {
		return models.Identity{}, err
	}
	return models.DecodeIdentity(dto)
}

// Remove drops handle from the friends of caller.
func (f *Friends) Remove(ctx context.Context, caller, handle string) error {
	if err := requireHandle(handle); err != nil {
		return err
	}
	return f.r.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   rest.Path("friends", handle),
		Handle: caller,
	}, nil)
}
