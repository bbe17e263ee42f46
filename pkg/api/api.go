// Package api translates typed calls into requests against the chat
// service's HTTP endpoints and decodes the responses into models.
//
// Every call that acts on behalf of an identity takes the caller handle; the
// service checks that the logged-in account owns it. Failures reported by the
// service surface unchanged as *Error values; nothing is retried.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/criterio"

	"github.com/omochice/chat-sdk/internal/transport/rest"
)

// ErrValidation is wrapped by errors raised before any request is sent.
var ErrValidation = errors.New("validation failed")

// HeaderAlias is the header that carries Request.Handle.
const HeaderAlias = rest.HeaderAlias

type (
	// Request describes one call to the service.
	Request = rest.Request
	// Error is a non-2xx response. Its message is the one sent by the service.
	Error = rest.Error
)

// IsStatus reports whether err is an *Error with the given status code.
func IsStatus(err error, status int) bool {
	return rest.IsStatus(err, status)
}

// Requester sends one request to the service and decodes the JSON response
// into out.
type Requester interface {
	Do(ctx context.Context, req Request, out any) error
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func requireField(errs criterio.FieldErrorsBuilder, field, value string) criterio.FieldErrorsBuilder {
	if value == "" {
		errs = errs.Append(field, fmt.Errorf("is required"))
	}
	return errs
}
