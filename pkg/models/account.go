package models

import (
	"fmt"

	"github.com/hay-kot/criterio"
)

// Account holds the login credentials of a user. It is never used to address
// messages; Handle names the account's default identity.
type Account struct {
	Entity
	Email  string `json:"email"`
	Handle string `json:"handle"`
}

// AccountDTO is the wire form of Account.
type AccountDTO struct {
	EntityDTO
	Email  string `json:"email"`
	Handle string `json:"handle"`
}

// DecodeAccount validates dto and converts it into an Account.
func DecodeAccount(dto AccountDTO) (Account, error) {
	var errs criterio.FieldErrorsBuilder

	entity, errs := decodeEntity("", dto.EntityDTO, errs)
	if dto.Handle == "" {
		errs = errs.Append("handle", fmt.Errorf("is required"))
	}

	if err := errs.ToError(); err != nil {
		return Account{}, fmt.Errorf("invalid account: %w", err)
	}

	return Account{
		Entity: entity,
		Email:  dto.Email,
		Handle: dto.Handle,
	}, nil
}
