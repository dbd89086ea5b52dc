package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every expected failure of a stand or obligation operation
// matches exactly one of these through errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyReserved  = errors.New("stand already reserved")
	ErrNotHolder        = errors.New("caller is not the holder")
	ErrInvalidState     = errors.New("invalid state")
	ErrNoProofSubmitted = errors.New("no proof of payment submitted")
	ErrAlreadySettled   = errors.New("obligation already settled")
)

var (
	ErrEventNotFound      = fmt.Errorf("event %w", ErrNotFound)
	ErrStandNotFound      = fmt.Errorf("stand %w", ErrNotFound)
	ErrObligationNotFound = fmt.Errorf("obligation %w", ErrNotFound)

	ErrHoldExpired             = fmt.Errorf("%w: hold expired", ErrInvalidState)
	ErrEventInactive           = fmt.Errorf("%w: event is not open for reservations", ErrInvalidState)
	ErrActiveObligationExists  = fmt.Errorf("%w: stand already has an active obligation", ErrInvalidState)
	ErrStandNotReservedByActor = fmt.Errorf("%w: stand is not reserved by the obligation participant", ErrInvalidState)
)

// Validation errors, rejected before touching the store.
var (
	ErrInvalidID          = errors.New("invalid id")
	ErrActorRequired      = errors.New("actor required")
	ErrForbidden          = errors.New("forbidden")
	ErrReceiptRequired    = errors.New("receipt reference required")
	ErrInvalidStandStatus = errors.New("invalid stand status")
	ErrHolderRequired     = errors.New("holder required for reserved or sold stand")
	ErrEventNameRequired  = errors.New("event name required")
	ErrStandNameRequired  = errors.New("stand name required")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrStandAlreadyExists = errors.New("stand already exists")
)

// ErrConditionFailed is returned by stores when a conditional write matched
// no row. Services translate it into one of the kinds above.
var ErrConditionFailed = errors.New("conditional write did not apply")

type Kind string

const (
	KindNone             Kind = ""
	KindNotFound         Kind = "not_found"
	KindAlreadyReserved  Kind = "already_reserved"
	KindNotHolder        Kind = "not_holder"
	KindInvalidState     Kind = "invalid_state"
	KindNoProofSubmitted Kind = "no_proof_submitted"
	KindAlreadySettled   Kind = "already_settled"
	KindValidation       Kind = "validation"
	KindForbidden        Kind = "forbidden"
	KindInternal         Kind = "internal"
)

// KindOf classifies err. A nil error has KindNone; anything unknown is
// KindInternal and should be treated as a store fault.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyReserved):
		return KindAlreadyReserved
	case errors.Is(err, ErrNotHolder):
		return KindNotHolder
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrNoProofSubmitted):
		return KindNoProofSubmitted
	case errors.Is(err, ErrAlreadySettled):
		return KindAlreadySettled
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case isValidation(err):
		return KindValidation
	default:
		return KindInternal
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidID,
		ErrActorRequired,
		ErrReceiptRequired,
		ErrInvalidStandStatus,
		ErrHolderRequired,
		ErrEventNameRequired,
		ErrStandNameRequired,
		ErrInvalidPrice,
		ErrStandAlreadyExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
