package api

import (
	"context"
	"net/http"

	"github.com/hay-kot/criterio"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/models"
)

// PrivateData wraps the private data endpoints. Records are addressed by the
// id of the entity they annotate; each caller holds at most one record per
// entity.
type PrivateData struct {
	r Requester
}

// NewPrivateData creates the PrivateData endpoint.
func NewPrivateData(r Requester) *PrivateData {
	return &PrivateData{r: r}
}

// Put creates or replaces the caller's record for entityID.
func (p *PrivateData) Put(ctx context.Context, caller, entityID string, data any) (models.PrivateData, error) {
	if err := requireEntityID(entityID); err != nil {
		return models.PrivateData{}, err
	}
	return p.record(ctx, rest.Request{
		Method: http.MethodPut,
		Path:   rest.Path("private-data", entityID),
		Handle: caller,
		Body:   dataBody{Data: data},
	})
}

// Get returns the caller's record for entityID.
func (p *PrivateData) Get(ctx context.Context, caller, entityID string) (models.PrivateData, error) {
	if err := requireEntityID(entityID); err != nil {
		return models.PrivateData{}, err
	}
	return p.record(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   rest.Path("private-data", entityID),
		Handle: caller,
	})
}

// List returns every record of the caller.
func (p *PrivateData) List(ctx context.Context, caller string) ([]models.PrivateData, error) {
	var dtos []models.PrivateDataDTO
	if err := p.r.Do(ctx, rest.Request{Method: http.MethodGet, Path: "/private-data", Handle: caller}, &dtos); err != nil {
		return nil, err
	}

	out := make([]models.PrivateData, 0, len(dtos))
	for _, dto := range dtos {
		rec, err := models.DecodePrivateData(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes the caller's record for entityID.
func (p *PrivateData) Delete(ctx context.Context, caller, entityID string) error {
	if err := requireEntityID(entityID); err != nil {
		return err
	}
	return p.r.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   rest.Path("private-data", entityID),
		Handle: caller,
	}, nil)
}

func (p *PrivateData) record(ctx context.Context, req rest.Request) (models.PrivateData, error) {
	var dto models.PrivateDataDTO
	if err := p.r.Do(ctx, req, &dto); err != nil {
		return models.PrivateData{}, err
	}
	return models.DecodePrivateData(dto)
}

func requireEntityID(id string) error {
	var errs criterio.FieldErrorsBuilder
	return validationError(requireField(errs, "entityId", id).ToError())
}
