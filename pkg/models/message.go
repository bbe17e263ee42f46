package models

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/hay-kot/criterio"
)

// Message is sent by one identity to one or more recipients. Sender and
// recipients are fixed at creation; only Data changes on update.
type Message struct {
	Entity
	Sender     Identity        `json:"sender"`
	Recipients []Identity      `json:"recipients"`
	Data       json.RawMessage `json:"data"`
}

// MessageDTO is the wire form of Message.
type MessageDTO struct {
	EntityDTO
	Sender     *IdentityDTO    `json:"sender"`
	Recipients []IdentityDTO   `json:"recipients"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// DecodeMessage validates dto and converts it into a Message.
func DecodeMessage(dto MessageDTO) (Message, error) {
	var errs criterio.FieldErrorsBuilder

	entity, errs := decodeEntity("", dto.EntityDTO, errs)

	var sender Identity
	if dto.Sender == nil {
		errs = errs.Append("sender", fmt.Errorf("is required"))
	} else {
		sender, errs = decodeIdentity("sender.", *dto.Sender, errs)
	}

	if len(dto.Recipients) == 0 {
		errs = errs.Append("recipients", fmt.Errorf("at least one recipient is required"))
	}
	recipients := make([]Identity, 0, len(dto.Recipients))
	for i, r := range dto.Recipients {
		var id Identity
		id, errs = decodeIdentity(fmt.Sprintf("recipients[%d].", i), r, errs)
		recipients = append(recipients, id)
	}

	if err := errs.ToError(); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}

	return Message{
		Entity:     entity,
		Sender:     sender,
		Recipients: recipients,
		Data:       normalizeData(dto.Data),
	}, nil
}

// DecodeMessages decodes every element of dtos, failing on the first invalid one.
func DecodeMessages(dtos []MessageDTO) ([]Message, error) {
	out := make([]Message, 0, len(dtos))
	for i, dto := range dtos {
		m, err := DecodeMessage(dto)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// RecipientHandles returns the recipient handles in wire order.
func (m Message) RecipientHandles() []string {
	out := make([]string, 0, len(m.Recipients))
	for _, r := range m.Recipients {
		out = append(out, r.Handle)
	}
	return out
}

// ParticipantHandles returns the sender followed by the recipients,
// without duplicates.
func (m Message) ParticipantHandles() []string {
	out := []string{m.Sender.Handle}
	for _, r := range m.Recipients {
		if !slices.Contains(out, r.Handle) {
			out = append(out, r.Handle)
		}
	}
	return out
}

// InterlocutorIDs returns the sorted, de-duplicated identity ids of the
// sender and every recipient.
func (m Message) InterlocutorIDs() []string {
	ids := make([]string, 0, len(m.Recipients)+1)
	ids = append(ids, m.Sender.ID)
	for _, r := range m.Recipients {
		ids = append(ids, r.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// HasSender reports whether handle sent m.
func (m Message) HasSender(handle string) bool {
	return m.Sender.Handle == handle
}

// UnmarshalData decodes the message's data into v.
func (m Message) UnmarshalData(v any) error {
	return unmarshalData(m.Data, v)
}
