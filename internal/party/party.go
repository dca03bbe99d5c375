package party

import (
	errors "github.com/fanmate/platform/internal"
	partymodel "github.com/fanmate/platform/internal/core/datamodel/party"
)

// Repository defines the data access methods for parties
type Repository interface {
	GetByID(id int64) (*partymodel.Party, error)
	GetByIDForUpdate(id int64) (*partymodel.Party, error)
	IncrementParticipants(id int64) error
	UpdateStatus(id int64, status string) error
}

var (
	ErrPartyNotFound     = errors.ErrPartyNotFound
	ErrPartyFull         = errors.ErrPartyFull
	ErrInvalidPartyState = errors.NewValidationError("party is not in a state that allows this payment", errors.ErrCodeInvalidPartyState)
)
