package models

import (
	"encoding/json"
	"fmt"

	"github.com/hay-kot/criterio"
)

// Identity is the addressable sender and recipient of messages.
type Identity struct {
	Entity
	Handle string          `json:"handle"`
	Data   json.RawMessage `json:"data"`
}

// IdentityDTO is the wire form of Identity.
type IdentityDTO struct {
	EntityDTO
	Handle string          `json:"handle"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// DecodeIdentity validates dto and converts it into an Identity.
func DecodeIdentity(dto IdentityDTO) (Identity, error) {
	id, errs := decodeIdentity("", dto, criterio.FieldErrorsBuilder{})
	if err := errs.ToError(); err != nil {
		return Identity{}, fmt.Errorf("invalid identity: %w", err)
	}
	return id, nil
}

// DecodeIdentities decodes every element of dtos, failing on the first invalid one.
func DecodeIdentities(dtos []IdentityDTO) ([]Identity, error) {
	out := make([]Identity, 0, len(dtos))
	for i, dto := range dtos {
		id, err := DecodeIdentity(dto)
		if err != nil {
			return nil, fmt.Errorf("identity %d: %w", i, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func decodeIdentity(prefix string, dto IdentityDTO, errs criterio.FieldErrorsBuilder) (Identity, criterio.FieldErrorsBuilder) {
	entity, errs := decodeEntity(prefix, dto.EntityDTO, errs)
	if dto.Handle == "" {
		errs = errs.Append(prefix+"handle", fmt.Errorf("is required"))
	}
	return Identity{
		Entity: entity,
		Handle: dto.Handle,
		Data:   normalizeData(dto.Data),
	}, errs
}

// UnmarshalData decodes the identity's data into v.
func (i Identity) UnmarshalData(v any) error {
	return unmarshalData(i.Data, v)
}
