package reservations

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a reservation request lifecycle state.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusConverted Status = "converted"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
)

// Reservation is an inbound public booking request. It is never deleted,
// only status-advanced.
type Reservation struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	RequestedDT    time.Time `json:"requested_dt"`
	ClientName     string    `json:"client_name"`
	Phone          string    `json:"phone"`
	ServiceName    string    `json:"service_name"`
	Note           string    `json:"note,omitempty"`
	Status         Status    `json:"status"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusEvent is one immutable history entry for a reservation.
type StatusEvent struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	FromStatus    Status    `json:"from_status"`
	ToStatus      Status    `json:"to_status"`
	Action        string    `json:"action"`
	ActorEmail    string    `json:"actor_email,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Event actions.
const (
	ActionStatusUpdate     = "status_update"
	ActionConvertedToVisit = "converted_to_visit"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusNew:       {StatusContacted: true, StatusDeclined: true, StatusExpired: true},
	StatusContacted: {StatusDeclined: true, StatusExpired: true},
	StatusConverted: {},
	StatusDeclined:  {},
	StatusExpired:   {},
}

// ValidStatus reports whether s names a known reservation status.
func ValidStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is an allowed direct edge.
// converted is never a direct edge; it is only reachable through conversion.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// Convertible reports whether a reservation in this status may still be
// converted into a visit.
func Convertible(s Status) bool {
	return s == StatusNew || s == StatusContacted
}

// ValidateNew checks a public submission before insertion.
func ValidateNew(r *Reservation) error {
	if strings.TrimSpace(r.ClientName) == "" ||
		strings.TrimSpace(r.Phone) == "" ||
		strings.TrimSpace(r.ServiceName) == "" {
		return ErrInvalidReservation
	}
	if r.RequestedDT.IsZero() {
		return ErrInvalidReservation
	}
	return nil
}
