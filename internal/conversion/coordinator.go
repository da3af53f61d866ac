// Package conversion atomically turns one reservation into one visit,
// holding the one-to-one invariant under concurrent and duplicate attempts.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danieloza/salonos/internal/jobs"
	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/visits"
	"github.com/danieloza/salonos/pkg/logging"
)

var (
	// ErrNotConvertible is returned when the reservation is declined or
	// expired and can no longer become a visit.
	ErrNotConvertible = errors.New("reservation is not convertible")

	// ErrIntegrity is returned when a converted reservation has no linked
	// visit, which the auditor should surface.
	ErrIntegrity = errors.New("converted reservation has no visit")
)

// AlreadyConvertedError reports a convert attempt against a reservation whose
// existing visit disagrees with the request. The visit rides along so the
// caller can show what actually got booked.
type AlreadyConvertedError struct {
	Visit *visits.Visit
}

func (e *AlreadyConvertedError) Error() string {
	return fmt.Sprintf("reservation already converted to visit %s (employee %s)", e.Visit.ID, e.Visit.EmployeeName)
}

// Tx is one atomic conversion unit of work.
type Tx interface {
	// ReservationForUpdate loads the reservation with a lock sufficient to
	// serialize concurrent converters of the same row.
	ReservationForUpdate(ctx context.Context, tenantID, reservationID uuid.UUID) (*reservations.Reservation, error)
	VisitBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*visits.Visit, error)
	InsertVisit(ctx context.Context, visit *visits.Visit) error
	MarkConverted(ctx context.Context, tenantID, reservationID uuid.UUID, from reservations.Status, actor string, visitID uuid.UUID) error
	// EnqueueJob schedules a background job that commits or rolls back with
	// the rest of the conversion.
	EnqueueJob(ctx context.Context, tenantID uuid.UUID, jobType string, payload map[string]any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens conversion transactions and serves the out-of-band replay read.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	VisitBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*visits.Visit, error)
}

// Request carries the staff input for one conversion.
type Request struct {
	ReservationID uuid.UUID
	EmployeeName  string
	Price         float64
	DurationMin   int
	Actor         string
	// Optional overrides; the reservation seeds anything left blank.
	StartDT     *time.Time
	ServiceName string
	ClientName  string
}

// ClientRecorder folds a converted reservation into the tenant's CRM.
type ClientRecorder interface {
	RecordVisit(ctx context.Context, tenantID uuid.UUID, name, phone string) error
}

// Coordinator converts reservations into visits exactly once.
type Coordinator struct {
	store    Store
	recorder ClientRecorder
	logger   *logging.Logger
}

// NewCoordinator creates a new conversion coordinator.
func NewCoordinator(store Store, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{store: store, logger: logger}
}

// WithClientRecorder attaches CRM bookkeeping for fresh conversions. Replays
// never record twice.
func (c *Coordinator) WithClientRecorder(recorder ClientRecorder) *Coordinator {
	c.recorder = recorder
	return c
}

// Convert runs one conversion attempt. Replays of an already converted
// reservation return the existing visit unchanged.
func (c *Coordinator) Convert(ctx context.Context, tenantID uuid.UUID, req Request) (*visits.Visit, error) {
	if req.EmployeeName == "" {
		return nil, fmt.Errorf("%w: employee_name is required", ErrNotConvertible)
	}
	if req.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrNotConvertible)
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversion: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	reservation, err := tx.ReservationForUpdate(ctx, tenantID, req.ReservationID)
	if err != nil {
		return nil, err
	}

	if reservation.Status == reservations.StatusConverted {
		visit, err := tx.VisitBySourceReservation(ctx, tenantID, reservation.ID)
		if errors.Is(err, visits.ErrVisitNotFound) {
			return nil, fmt.Errorf("%w: reservation %s", ErrIntegrity, reservation.ID)
		}
		if err != nil {
			return nil, err
		}
		if visit.EmployeeName != req.EmployeeName {
			return nil, &AlreadyConvertedError{Visit: visit}
		}
		c.logger.Info("conversion replayed",
			"reservation_id", reservation.ID, "visit_id", visit.ID)
		return visit, nil
	}
	if !reservations.Convertible(reservation.Status) {
		return nil, fmt.Errorf("%w: status %s", ErrNotConvertible, reservation.Status)
	}

	visit := c.seedVisit(tenantID, reservation, req)
	if err := tx.InsertVisit(ctx, visit); err != nil {
		if errors.Is(err, visits.ErrDuplicateSourceReservation) {
			// Lost the race to a concurrent converter. Roll back and hand
			// out the winner's visit.
			tx.Rollback(ctx)
			return c.store.VisitBySourceReservation(ctx, tenantID, reservation.ID)
		}
		return nil, err
	}
	if err := tx.MarkConverted(ctx, tenantID, reservation.ID, reservation.Status, req.Actor, visit.ID); err != nil {
		return nil, err
	}
	if err := tx.EnqueueJob(ctx, tenantID, jobs.TypeCalendarSync, map[string]any{
		"visit_id":       visit.ID.String(),
		"reservation_id": reservation.ID.String(),
	}); err != nil {
		return nil, fmt.Errorf("conversion: enqueue calendar sync: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("conversion: commit: %w", err)
	}

	if c.recorder != nil {
		if err := c.recorder.RecordVisit(ctx, tenantID, visit.ClientName, visit.Phone); err != nil {
			// The conversion already committed; the count can lag.
			c.logger.Error("failed to record client visit", "error", err, "visit_id", visit.ID)
		}
	}

	c.logger.Info("reservation converted",
		"reservation_id", reservation.ID, "visit_id", visit.ID, "employee", visit.EmployeeName, "actor", req.Actor)
	return visit, nil
}

func (c *Coordinator) seedVisit(tenantID uuid.UUID, reservation *reservations.Reservation, req Request) *visits.Visit {
	sourceID := reservation.ID
	visit := &visits.Visit{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		ClientName:          reservation.ClientName,
		Phone:               reservation.Phone,
		ServiceName:         reservation.ServiceName,
		EmployeeName:        req.EmployeeName,
		StartDT:             reservation.RequestedDT,
		DurationMin:         req.DurationMin,
		Price:               req.Price,
		Status:              visits.StatusScheduled,
		SourceReservationID: &sourceID,
		CreatedAt:           time.Now().UTC(),
	}
	if visit.DurationMin <= 0 {
		visit.DurationMin = 60
	}
	if req.StartDT != nil {
		visit.StartDT = *req.StartDT
	}
	if req.ServiceName != "" {
		visit.ServiceName = req.ServiceName
	}
	if req.ClientName != "" {
		visit.ClientName = req.ClientName
	}
	return visit
}
