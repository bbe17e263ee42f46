package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hay-kot/criterio"

	"github.com/omochice/chat-sdk/internal/transport/rest"
	"github.com/omochice/chat-sdk/pkg/models"
)

// Query parameters understood by the message list endpoint.
const (
	ParamInterlocutors = "interlocutors"
	ParamSince         = "since"
)

// SendInput creates a message from the caller to Recipients.
type SendInput struct {
	Recipients []string `json:"recipients"`
	Data       any      `json:"data,omitempty"`
}

// Messages wraps the message endpoints.
type Messages struct {
	r Requester
}

// NewMessages creates the Messages endpoint.
func NewMessages(r Requester) *Messages {
	return &Messages{r: r}
}

// Send posts a message as caller.
func (m *Messages) Send(ctx context.Context, caller string, in SendInput) (models.Message, error) {
	var errs criterio.FieldErrorsBuilder
	errs = requireField(errs, "caller", caller)
	if len(in.Recipients) == 0 {
		errs = errs.Append("recipients", fmt.Errorf("at least one recipient is required"))
	}
	for i, h := range in.Recipients {
		errs = requireField(errs, fmt.Sprintf("recipients[%d]", i), h)
	}
	if err := validationError(errs.ToError()); err != nil {
		return models.Message{}, err
	}

	return m.message(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/messages",
		Handle: caller,
		Body:   in,
	})
}

// Get fetches one message visible to caller.
func (m *Messages) Get(ctx context.Context, caller, id string) (models.Message, error) {
	if err := requireID(id); err != nil {
		return models.Message{}, err
	}
	return m.message(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   rest.Path("messages", id),
		Handle: caller,
	})
}

// List returns the messages visible to caller that match q. The server
// narrows by interlocutors and creation time; the match policy is applied
// to the response before it is returned.
func (m *Messages) List(ctx context.Context, caller string, q MessageQuery) ([]models.Message, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	if il := q.Interlocutors(); len(il) > 0 {
		params.Set(ParamInterlocutors, strings.Join(il, ","))
	}
	if !q.Since.IsZero() {
		params.Set(ParamSince, q.Since.UTC().Format(time.RFC3339Nano))
	}

	var dtos []models.MessageDTO
	err := m.r.Do(ctx, rest.Request{
		Method: http.MethodGet,
		Path:   "/messages",
		Handle: caller,
		Query:  params,
	}, &dtos)
	if err != nil {
		return nil, err
	}

	msgs, err := models.DecodeMessages(dtos)
	if err != nil {
		return nil, err
	}
	return RefineMessages(msgs, q), nil
}

// Update replaces the data of message id. Only its sender may update it.
func (m *Messages) Update(ctx context.Context, caller, id string, data any) (models.Message, error) {
	if err := requireID(id); err != nil {
		return models.Message{}, err
	}
	return m.message(ctx, rest.Request{
		Method: http.MethodPatch,
		Path:   rest.Path("messages", id),
		Handle: caller,
		Body:   dataBody{Data: data},
	})
}

// Delete removes message id. Only its sender may delete it.
func (m *Messages) Delete(ctx context.Context, caller, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return m.r.Do(ctx, rest.Request{
		Method: http.MethodDelete,
		Path:   rest.Path("messages", id),
		Handle: caller,
	}, nil)
}

func (m *Messages) message(ctx context.Context, req rest.Request) (models.Message, error) {
	var dto models.MessageDTO
	if err := m.r.Do(ctx, req, &dto); err != nil {
		return models.Message{}, err
	}
	return models.DecodeMessage(dto)
}

func requireID(id string) error {
	var errs criterio.FieldErrorsBuilder
	return validationError(requireField(errs, "id", id).ToError())
}
