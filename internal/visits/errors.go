package visits

import "errors"

var (
	// ErrVisitNotFound is returned when no visit matches the tenant and id.
	ErrVisitNotFound = errors.New("visit not found")

	// ErrInvalidTransition is returned for a status edge outside the allowed
	// set; the visit's status is left unchanged.
	ErrInvalidTransition = errors.New("invalid visit status transition")

	// ErrInvalidVisit is returned when a create request fails validation.
	ErrInvalidVisit = errors.New("invalid visit")

	// ErrDuplicateSourceReservation is returned when a second visit claims the
	// same source reservation.
	ErrDuplicateSourceReservation = errors.New("visit already exists for reservation")
)
