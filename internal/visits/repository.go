package visits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danieloza/salonos/internal/availability"
)

// Repository persists visits and their status history.
type Repository interface {
	Create(ctx context.Context, visit *Visit) error
	GetByID(ctx context.Context, tenantID, visitID uuid.UUID) (*Visit, error)
	GetBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*Visit, error)
	Transition(ctx context.Context, tenantID, visitID uuid.UUID, to Status, actor, note string) (*Visit, error)
	History(ctx context.Context, tenantID, visitID uuid.UUID) ([]StatusEvent, error)
	// ListForDay returns the day's visits, optionally filtered by employee,
	// ordered by start time. Cancelled and no-show visits are included; this
	// is the staff schedule view, not the availability feed.
	ListForDay(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]*Visit, error)
	SpansForDay(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]availability.VisitSpan, error)
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository is the pgx-backed visit repository.
type PostgresRepository struct {
	db db
}

func NewPostgresRepository(db db) *PostgresRepository {
	if db == nil {
		panic("visits: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const visitColumns = `id, tenant_id, client_name, COALESCE(phone, ''), service_name, employee_name,
	start_dt, duration_min, price, status, source_reservation_id, created_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.TenantID, &v.ClientName, &v.Phone, &v.ServiceName, &v.EmployeeName,
		&v.StartDT, &v.DurationMin, &v.Price, &v.Status, &v.SourceReservationID, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *PostgresRepository) Create(ctx context.Context, visit *Visit) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO visits (id, tenant_id, client_name, phone, service_name, employee_name,
		                    start_dt, duration_min, price, status, source_reservation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		visit.ID, visit.TenantID, visit.ClientName, visit.Phone, visit.ServiceName, visit.EmployeeName,
		visit.StartDT, visit.DurationMin, visit.Price, visit.Status, visit.SourceReservationID, visit.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSourceReservation
		}
		return fmt.Errorf("visits: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, visitID uuid.UUID) (*Visit, error) {
	visit, err := scanVisit(r.db.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE tenant_id = $1 AND id = $2`,
		tenantID, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("visits: load: %w", err)
	}
	return visit, nil
}

func (r *PostgresRepository) GetBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*Visit, error) {
	visit, err := scanVisit(r.db.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE tenant_id = $1 AND source_reservation_id = $2`,
		tenantID, reservationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("visits: load by source reservation: %w", err)
	}
	return visit, nil
}

// Transition moves a visit to a new status and appends the history event in
// the same transaction. Requesting the current status is a no-op success.
func (r *PostgresRepository) Transition(ctx context.Context, tenantID, visitID uuid.UUID, to Status, actor, note string) (*Visit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("visits: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	visit, err := scanVisit(tx.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVisitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("visits: lock visit: %w", err)
	}

	if visit.Status == to {
		return visit, nil
	}
	if !CanTransition(visit.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, visit.Status, to)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE visits SET status = $1 WHERE tenant_id = $2 AND id = $3`,
		to, tenantID, visitID); err != nil {
		return nil, fmt.Errorf("visits: update status: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO visit_status_events (id, tenant_id, visit_id, from_status, to_status, actor_email, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), tenantID, visitID, visit.Status, to, actor, note, now); err != nil {
		return nil, fmt.Errorf("visits: append status event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("visits: commit transition: %w", err)
	}

	visit.Status = to
	return visit, nil
}

func (r *PostgresRepository) History(ctx context.Context, tenantID, visitID uuid.UUID) ([]StatusEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, visit_id, from_status, to_status, COALESCE(actor_email, ''), COALESCE(note, ''), created_at
		FROM visit_status_events
		WHERE tenant_id = $1 AND visit_id = $2
		ORDER BY created_at`,
		tenantID, visitID)
	if err != nil {
		return nil, fmt.Errorf("visits: load history: %w", err)
	}
	defer rows.Close()

	var out []StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.VisitID, &e.FromStatus, &e.ToStatus, &e.ActorEmail, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("visits: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListForDay(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]*Visit, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `SELECT ` + visitColumns + `
		FROM visits
		WHERE tenant_id = $1 AND start_dt >= $2 AND start_dt < $3`
	args := []any{tenantID, dayStart, dayEnd}
	if employeeName != "" {
		args = append(args, employeeName)
		query += fmt.Sprintf(" AND employee_name = $%d", len(args))
	}
	query += " ORDER BY start_dt"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("visits: list for day: %w", err)
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("visits: scan: %w", err)
		}
		out = append(out, visit)
	}
	return out, rows.Err()
}

// SpansForDay returns booked spans feeding the availability engine. Cancelled
// and no-show visits release their time.
func (r *PostgresRepository) SpansForDay(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]availability.VisitSpan, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := r.db.Query(ctx, `
		SELECT start_dt, duration_min, service_name
		FROM visits
		WHERE tenant_id = $1 AND employee_name = $2
		  AND start_dt >= $3 AND start_dt < $4
		  AND status NOT IN ($5, $6)
		ORDER BY start_dt`,
		tenantID, employeeName, dayStart, dayEnd, StatusCancelled, StatusNoShow)
	if err != nil {
		return nil, fmt.Errorf("visits: list spans: %w", err)
	}
	defer rows.Close()

	var out []availability.VisitSpan
	for rows.Next() {
		var span availability.VisitSpan
		if err := rows.Scan(&span.Start, &span.DurationMin, &span.ServiceName); err != nil {
			return nil, fmt.Errorf("visits: scan span: %w", err)
		}
		out = append(out, span)
	}
	return out, rows.Err()
}

// InMemoryRepository keeps visits in maps, for tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Visit
	events map[uuid.UUID][]StatusEvent
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:   make(map[uuid.UUID]*Visit),
		events: make(map[uuid.UUID][]StatusEvent),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, visit *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if visit.SourceReservationID != nil {
		for _, existing := range r.byID {
			if existing.TenantID == visit.TenantID &&
				existing.SourceReservationID != nil &&
				*existing.SourceReservationID == *visit.SourceReservationID {
				return ErrDuplicateSourceReservation
			}
		}
	}
	copied := *visit
	r.byID[visit.ID] = &copied
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, tenantID, visitID uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	visit, ok := r.byID[visitID]
	if !ok || visit.TenantID != tenantID {
		return nil, ErrVisitNotFound
	}
	copied := *visit
	return &copied, nil
}

func (r *InMemoryRepository) GetBySourceReservation(_ context.Context, tenantID, reservationID uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, visit := range r.byID {
		if visit.TenantID == tenantID && visit.SourceReservationID != nil && *visit.SourceReservationID == reservationID {
			copied := *visit
			return &copied, nil
		}
	}
	return nil, ErrVisitNotFound
}

func (r *InMemoryRepository) Transition(_ context.Context, tenantID, visitID uuid.UUID, to Status, actor, note string) (*Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	visit, ok := r.byID[visitID]
	if !ok || visit.TenantID != tenantID {
		return nil, ErrVisitNotFound
	}
	if visit.Status == to {
		copied := *visit
		return &copied, nil
	}
	if !CanTransition(visit.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, visit.Status, to)
	}
	r.events[visitID] = append(r.events[visitID], StatusEvent{
		ID:         uuid.New(),
		TenantID:   tenantID,
		VisitID:    visitID,
		FromStatus: visit.Status,
		ToStatus:   to,
		ActorEmail: actor,
		Note:       note,
		CreatedAt:  time.Now().UTC(),
	})
	visit.Status = to
	copied := *visit
	return &copied, nil
}

func (r *InMemoryRepository) History(_ context.Context, tenantID, visitID uuid.UUID) ([]StatusEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.events[visitID]
	out := make([]StatusEvent, 0, len(events))
	for _, e := range events {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) ListForDay(_ context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	var out []*Visit
	for _, v := range r.byID {
		if v.TenantID != tenantID || v.StartDT.Before(dayStart) || !v.StartDT.Before(dayEnd) {
			continue
		}
		if employeeName != "" && v.EmployeeName != employeeName {
			continue
		}
		copied := *v
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDT.Before(out[j].StartDT) })
	return out, nil
}

func (r *InMemoryRepository) SpansForDay(_ context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]availability.VisitSpan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	var out []availability.VisitSpan
	for _, v := range r.byID {
		if v.TenantID == tenantID && v.EmployeeName == employeeName &&
			v.Status != StatusCancelled && v.Status != StatusNoShow &&
			!v.StartDT.Before(dayStart) && v.StartDT.Before(dayEnd) {
			out = append(out, availability.VisitSpan{
				Start:       v.StartDT,
				DurationMin: v.DurationMin,
				ServiceName: v.ServiceName,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// SourceRef pairs a visit with the reservation it was converted from.
type SourceRef struct {
	VisitID       uuid.UUID
	ReservationID uuid.UUID
}

// SourceRefs lists every visit in the tenant carrying a source reservation
// reference.
func (r *InMemoryRepository) SourceRefs(tenantID uuid.UUID) []SourceRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SourceRef
	for _, v := range r.byID {
		if v.TenantID == tenantID && v.SourceReservationID != nil {
			out = append(out, SourceRef{VisitID: v.ID, ReservationID: *v.SourceReservationID})
		}
	}
	return out
}

// ValidateNew checks a visit before insertion.
func ValidateNew(v *Visit) error {
	if strings.TrimSpace(v.ClientName) == "" ||
		strings.TrimSpace(v.ServiceName) == "" ||
		strings.TrimSpace(v.EmployeeName) == "" {
		return ErrInvalidVisit
	}
	if v.DurationMin <= 0 || v.Price < 0 || v.StartDT.IsZero() {
		return ErrInvalidVisit
	}
	return nil
}
