package reservations

import "errors"

var (
	// ErrReservationNotFound is returned when no reservation matches the
	// tenant and id.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInvalidReservation is returned when a public submission fails
	// validation.
	ErrInvalidReservation = errors.New("invalid reservation request")

	// ErrInvalidTransition is returned for a status edge outside the allowed
	// set; the reservation's status is left unchanged.
	ErrInvalidTransition = errors.New("invalid reservation status transition")

	// ErrIllegalDirectTransition is returned when a status patch tries to set
	// converted directly instead of going through conversion.
	ErrIllegalDirectTransition = errors.New("converted is only reachable through conversion")
)
