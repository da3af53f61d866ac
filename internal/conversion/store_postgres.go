package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danieloza/salonos/internal/jobs"
	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/visits"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore runs conversions on Postgres. The unique partial index on
// (tenant_id, source_reservation_id) backs the one-to-one invariant even if
// row locking is ever bypassed.
type PGStore struct {
	db db
}

func NewPGStore(db db) *PGStore {
	if db == nil {
		panic("conversion: pgx pool required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (s *PGStore) VisitBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*visits.Visit, error) {
	return visitBySource(ctx, s.db, tenantID, reservationID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const visitColumns = `id, tenant_id, client_name, COALESCE(phone, ''), service_name, employee_name,
	start_dt, duration_min, price, status, source_reservation_id, created_at`

func visitBySource(ctx context.Context, q rowQuerier, tenantID, reservationID uuid.UUID) (*visits.Visit, error) {
	var v visits.Visit
	err := q.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE tenant_id = $1 AND source_reservation_id = $2`,
		tenantID, reservationID).
		Scan(&v.ID, &v.TenantID, &v.ClientName, &v.Phone, &v.ServiceName, &v.EmployeeName,
			&v.StartDT, &v.DurationMin, &v.Price, &v.Status, &v.SourceReservationID, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, visits.ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversion: load visit by source: %w", err)
	}
	return &v, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ReservationForUpdate(ctx context.Context, tenantID, reservationID uuid.UUID) (*reservations.Reservation, error) {
	var r reservations.Reservation
	err := t.tx.QueryRow(ctx, `
		SELECT id, tenant_id, requested_dt, client_name, phone, service_name,
		       COALESCE(note, ''), status, COALESCE(idempotency_key, ''), created_at
		FROM reservations WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, reservationID).
		Scan(&r.ID, &r.TenantID, &r.RequestedDT, &r.ClientName, &r.Phone, &r.ServiceName,
			&r.Note, &r.Status, &r.IdempotencyKey, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, reservations.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversion: lock reservation: %w", err)
	}
	return &r, nil
}

func (t *pgTx) VisitBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*visits.Visit, error) {
	return visitBySource(ctx, t.tx, tenantID, reservationID)
}

func (t *pgTx) InsertVisit(ctx context.Context, visit *visits.Visit) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO visits (id, tenant_id, client_name, phone, service_name, employee_name,
		                    start_dt, duration_min, price, status, source_reservation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		visit.ID, visit.TenantID, visit.ClientName, visit.Phone, visit.ServiceName, visit.EmployeeName,
		visit.StartDT, visit.DurationMin, visit.Price, visit.Status, visit.SourceReservationID, visit.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return visits.ErrDuplicateSourceReservation
		}
		return fmt.Errorf("conversion: insert visit: %w", err)
	}
	return nil
}

func (t *pgTx) MarkConverted(ctx context.Context, tenantID, reservationID uuid.UUID, from reservations.Status, actor string, visitID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx,
		`UPDATE reservations SET status = $1 WHERE tenant_id = $2 AND id = $3`,
		reservations.StatusConverted, tenantID, reservationID); err != nil {
		return fmt.Errorf("conversion: mark converted: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO reservation_status_events (id, tenant_id, reservation_id, from_status, to_status, action, actor_email, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), tenantID, reservationID, from, reservations.StatusConverted,
		reservations.ActionConvertedToVisit, actor, "visit_id="+visitID.String(), time.Now().UTC()); err != nil {
		return fmt.Errorf("conversion: append conversion event: %w", err)
	}
	return nil
}

func (t *pgTx) EnqueueJob(ctx context.Context, tenantID uuid.UUID, jobType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("conversion: marshal job payload: %w", err)
	}
	now := time.Now().UTC()
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO background_jobs (id, tenant_id, job_type, payload, status, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), tenantID, jobType, data, jobs.StatusPending, now, now, now); err != nil {
		return fmt.Errorf("conversion: enqueue job: %w", err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
