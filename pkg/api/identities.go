package api

import (
	"context"
	"net/http"

	"github.com/hay-kot/criterio"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/models"
)

// IdentityInput creates an identity.
type IdentityInput struct {
	Handle string `json:"handle"`
	Data   any    `json:"data,omitempty"`
}

// Identities wraps the identity endpoints.
type Identities struct {
	r Requester
}

// NewIdentities creates the Identities endpoint.
func NewIdentities(r Requester) *Identities {
	return &Identities{r: r}
}

// Create adds an identity to the caller's account.
func (i *Identities) Create(ctx context.Context, caller string, in IdentityInput) (models.Identity, error) {
	var errs criterio.FieldErrorsBuilder
	errs = requireField(errs, "caller", caller)
	errs = requireField(errs, "handle", in.Handle)
	if err := validationError(errs.ToError()); err != nil {
		return models.Identity{}, err
	}

	return i.identity(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/identities",
		Handle: caller,
		Body:   in,
	})
}

// Get fetches the identity named handle.
func (i *Identities) Get(ctx context.Context, caller, handle string) (models.Identity, error) {
	if err := requireHandle(handle); err != nil {
		return models.Identity{}, err
	}
	return i.identity(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   rest.Path("identities", handle),
		Handle: caller,
	})
}

// List returns the identities owned by the caller's account.
func (i *Identities) List(ctx context.Context, caller string) ([]models.Identity, error) {
	var dtos []models.IdentityDTO
	if err := i.r.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/identities", Handle: caller}, &dtos); err != nil {
		return nil, err
	}
	return models.DecodeIdentities(dtos)
}

// Update replaces the data of the identity named handle.
func (i *Identities) Update(ctx context.Context, caller, handle string, data any) (models.Identity, error) {
	if err := requireHandle(handle); err != nil {
		return models.Identity{}, err
	}
	return i.identity(ctx, rest.Request{
		Method: http.MethodPatch,
		Path:   rest.Path("identities", handle),
		Handle: caller,
		Body:   dataBody{Data: data},
	})
}

// Delete removes the identity named handle.
func (i *Identities) Delete(ctx context.Context, caller, handle string) error {
	if err := requireHandle(handle); err != nil {
		return err
	}
	return i.r.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   rest.Path("identities", handle),
		Handle: caller,
	}, nil)
}

func (i *Identities) identity(ctx context.Context, req rest.Request) (models.Identity, error) {
	var dto models.IdentityDTO
	if err := i.r.Do(ctx, req, &dto); err != nil {
		return models.Identity{}, err
	}
	return models.DecodeIdentity(dto)
}

// dataBody is the request body of update calls.
type dataBody struct {
	Data any `json:"data"`
}

func requireHandle(handle string) error {
	var errs criterio.FieldErrorsBuilder
	return validationError(requireField(errs, "handle", handle).ToError())
}
