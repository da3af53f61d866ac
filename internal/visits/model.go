package visits

import (
	"time"

	"github.com/google/uuid"
)

// Status is a visit lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Visit is a booked appointment. SourceReservationID links back to the
// public reservation it was converted from, at most one visit per
// reservation.
type Visit struct {
	ID                  uuid.UUID  `json:"id"`
	TenantID            uuid.UUID  `json:"tenant_id"`
	ClientName          string     `json:"client_name"`
	Phone               string     `json:"phone,omitempty"`
	ServiceName         string     `json:"service_name"`
	EmployeeName        string     `json:"employee_name"`
	StartDT             time.Time  `json:"start_dt"`
	DurationMin         int        `json:"duration_min"`
	Price               float64    `json:"price"`
	Status              Status     `json:"status"`
	SourceReservationID *uuid.UUID `json:"source_reservation_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// StatusEvent is one immutable history entry, appended atomically with the
// status change that produced it.
type StatusEvent struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	VisitID    uuid.UUID `json:"visit_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorEmail string    `json:"actor_email,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusScheduled: {StatusConfirmed: true, StatusCancelled: true, StatusNoShow: true},
	StatusConfirmed: {StatusArrived: true, StatusCancelled: true, StatusNoShow: true},
	StatusArrived:   {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

// ValidStatus reports whether s names a known visit status.
func ValidStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is an allowed edge. A same-status
// request is not an edge; callers treat it as an idempotent no-op.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}
