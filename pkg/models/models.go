// Package models holds the entities exchanged with the chat service.
//
// Every model is an immutable value built by a Decode function from its wire
// transfer object. Decoding validates required fields and normalises optional
// ones, so a model value obtained from this package is always well formed.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hay-kot/criterio"
)

// Entity carries the fields shared by every stored object.
type Entity struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EntityDTO is the wire form of Entity.
type EntityDTO struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var nullData = json.RawMessage("null")

func decodeEntity(prefix string, dto EntityDTO, errs criterio.FieldErrorsBuilder) (Entity, criterio.FieldErrorsBuilder) {
	if dto.ID == "" {
		errs = errs.Append(prefix+"id", fmt.Errorf("is required"))
	}
	e := Entity{
		ID:        dto.ID,
		CreatedAt: dto.CreatedAt.UTC(),
		UpdatedAt: dto.UpdatedAt.UTC(),
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	return e, errs
}

// normalizeData returns a private copy of raw, or JSON null when raw is empty.
func normalizeData(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nullData
	}
	out := make(json.RawMessage, len(trimmed))
	copy(out, trimmed)
	return out
}

func unmarshalData(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
