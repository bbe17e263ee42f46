package models

import (
	"encoding/json"
	"fmt"

	"github.com/hay-kot/criterio"
)

// PrivateData is arbitrary JSON attached to another entity and visible only
// to the identity that wrote it.
type PrivateData struct {
	Entity
	EntityID string          `json:"entityId"`
	Data     json.RawMessage `json:"data"`
}

// PrivateDataDTO is the wire form of PrivateData.
type PrivateDataDTO struct {
	EntityDTO
	EntityID string          `json:"entityId"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// DecodePrivateData validates dto and converts it into a PrivateData.
func DecodePrivateData(dto PrivateDataDTO) (PrivateData, error) {
	var errs criterio.FieldErrorsBuilder

	entity, errs := decodeEntity("", dto.EntityDTO, errs)
	if dto.EntityID == "" {
		errs = errs.Append("entityId", fmt.Errorf("is required"))
	}

	if err := errs.ToError(); err != nil {
		return PrivateData{}, fmt.Errorf("invalid private data: %w", err)
	}

	return PrivateData{
		Entity:   entity,
		EntityID: dto.EntityID,
		Data:     normalizeData(dto.Data),
	}, nil
}

// UnmarshalData decodes the record's data into v.
func (p PrivateData) UnmarshalData(v any) error {
	return unmarshalData(p.Data, v)
}
