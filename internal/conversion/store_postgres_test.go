package conversion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieloza/salonos/internal/jobs"
	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/visits"
)

func pgReservation(tenantID uuid.UUID, status reservations.Status) *reservations.Reservation {
	return &reservations.Reservation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		RequestedDT: time.Date(2026, 9, 17, 14, 0, 0, 0, time.UTC),
		ClientName:  "Anna Kowalska",
		Phone:       "+48555111222",
		ServiceName: "manicure",
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
}

func pgReservationRows(r *reservations.Reservation) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "requested_dt", "client_name", "phone", "service_name",
		"note", "status", "idempotency_key", "created_at",
	}).AddRow(r.ID, r.TenantID, r.RequestedDT, r.ClientName, r.Phone, r.ServiceName,
		r.Note, r.Status, r.IdempotencyKey, r.CreatedAt)
}

func pgVisitRows(v *visits.Visit) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "client_name", "phone", "service_name", "employee_name",
		"start_dt", "duration_min", "price", "status", "source_reservation_id", "created_at",
	}).AddRow(v.ID, v.TenantID, v.ClientName, v.Phone, v.ServiceName, v.EmployeeName,
		v.StartDT, v.DurationMin, v.Price, v.Status, v.SourceReservationID, v.CreatedAt)
}

func TestPGConvertHappyPath(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenantID := uuid.New()
	reservation := pgReservation(tenantID, reservations.StatusNew)
	coordinator := NewCoordinator(NewPGStore(mock), nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM reservations (.+) FOR UPDATE").
		WithArgs(tenantID, reservation.ID).
		WillReturnRows(pgReservationRows(reservation))
	mock.ExpectExec("INSERT INTO visits").
		WithArgs(pgxmock.AnyArg(), tenantID, reservation.ClientName, reservation.Phone,
			reservation.ServiceName, "Magda", reservation.RequestedDT, 60, 260.0,
			visits.StatusScheduled, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE reservations SET status").
		WithArgs(reservations.StatusConverted, tenantID, reservation.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO reservation_status_events").
		WithArgs(pgxmock.AnyArg(), tenantID, reservation.ID, reservations.StatusNew,
			reservations.StatusConverted, reservations.ActionConvertedToVisit,
			"staff@salon.pl", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO background_jobs").
		WithArgs(pgxmock.AnyArg(), tenantID, jobs.TypeCalendarSync, pgxmock.AnyArg(),
			jobs.StatusPending, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	visit, err := coordinator.Convert(context.Background(), tenantID, Request{
		ReservationID: reservation.ID,
		EmployeeName:  "Magda",
		Price:         260,
		Actor:         "staff@salon.pl",
	})
	require.NoError(t, err)
	assert.Equal(t, visits.StatusScheduled, visit.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGConvertReplayReturnsExistingVisit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenantID := uuid.New()
	reservation := pgReservation(tenantID, reservations.StatusConverted)
	existing := &visits.Visit{
		ID: uuid.New(), TenantID: tenantID, ClientName: reservation.ClientName,
		ServiceName: reservation.ServiceName, EmployeeName: "Magda",
		StartDT: reservation.RequestedDT, DurationMin: 60, Price: 260,
		Status: visits.StatusScheduled, SourceReservationID: &reservation.ID,
		CreatedAt: time.Now().UTC(),
	}
	coordinator := NewCoordinator(NewPGStore(mock), nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM reservations (.+) FOR UPDATE").
		WithArgs(tenantID, reservation.ID).
		WillReturnRows(pgReservationRows(reservation))
	mock.ExpectQuery("SELECT (.+) FROM visits WHERE tenant_id = \\$1 AND source_reservation_id").
		WithArgs(tenantID, reservation.ID).
		WillReturnRows(pgVisitRows(existing))
	mock.ExpectRollback()

	visit, err := coordinator.Convert(context.Background(), tenantID, Request{
		ReservationID: reservation.ID,
		EmployeeName:  "Magda",
		Price:         260,
		Actor:         "staff@salon.pl",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, visit.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A converter that loses the unique-index race rolls back and returns the
// winner's visit.
func TestPGConvertUniqueRaceFallsBackToWinner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenantID := uuid.New()
	reservation := pgReservation(tenantID, reservations.StatusNew)
	winner := &visits.Visit{
		ID: uuid.New(), TenantID: tenantID, ClientName: reservation.ClientName,
		ServiceName: reservation.ServiceName, EmployeeName: "Magda",
		StartDT: reservation.RequestedDT, DurationMin: 60, Price: 260,
		Status: visits.StatusScheduled, SourceReservationID: &reservation.ID,
		CreatedAt: time.Now().UTC(),
	}
	coordinator := NewCoordinator(NewPGStore(mock), nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM reservations (.+) FOR UPDATE").
		WithArgs(tenantID, reservation.ID).
		WillReturnRows(pgReservationRows(reservation))
	mock.ExpectExec("INSERT INTO visits").
		WithArgs(pgxmock.AnyArg(), tenantID, reservation.ClientName, reservation.Phone,
			reservation.ServiceName, "Magda", reservation.RequestedDT, 60, 260.0,
			visits.StatusScheduled, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT (.+) FROM visits WHERE tenant_id = \\$1 AND source_reservation_id").
		WithArgs(tenantID, reservation.ID).
		WillReturnRows(pgVisitRows(winner))

	visit, err := coordinator.Convert(context.Background(), tenantID, Request{
		ReservationID: reservation.ID,
		EmployeeName:  "Magda",
		Price:         260,
		Actor:         "staff@salon.pl",
	})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, visit.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
