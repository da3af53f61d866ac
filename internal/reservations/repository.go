package reservations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ListFilter narrows reservation listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository persists reservations and their status history.
type Repository interface {
	// Create inserts a reservation. When an idempotency key is set and a
	// reservation with the same (tenant, key) already exists, the existing
	// row is returned instead of a duplicate.
	Create(ctx context.Context, reservation *Reservation) (*Reservation, error)
	GetByID(ctx context.Context, tenantID, reservationID uuid.UUID) (*Reservation, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]*Reservation, error)
	Transition(ctx context.Context, tenantID, reservationID uuid.UUID, to Status, actor, note string) (*Reservation, error)
	History(ctx context.Context, tenantID, reservationID uuid.UUID) ([]StatusEvent, error)
	// ExpireStale marks new reservations created before cutoff as expired and
	// returns how many were advanced.
	ExpireStale(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
	// CountByStatus returns reservation counts per status for the tenant.
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[Status]int, error)
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository is the pgx-backed reservation repository.
type PostgresRepository struct {
	db db
}

func NewPostgresRepository(db db) *PostgresRepository {
	if db == nil {
		panic("reservations: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const reservationColumns = `id, tenant_id, requested_dt, client_name, phone, service_name,
	COALESCE(note, ''), status, COALESCE(idempotency_key, ''), created_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.TenantID, &r.RequestedDT, &r.ClientName, &r.Phone, &r.ServiceName,
		&r.Note, &r.Status, &r.IdempotencyKey, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *PostgresRepository) Create(ctx context.Context, reservation *Reservation) (*Reservation, error) {
	var key *string
	if reservation.IdempotencyKey != "" {
		key = &reservation.IdempotencyKey
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO reservations (id, tenant_id, requested_dt, client_name, phone, service_name,
		                          note, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		reservation.ID, reservation.TenantID, reservation.RequestedDT, reservation.ClientName,
		reservation.Phone, reservation.ServiceName, reservation.Note, reservation.Status,
		key, reservation.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && key != nil {
			// A concurrent retry with the same key won; return its row.
			return r.getByIdempotencyKey(ctx, reservation.TenantID, *key)
		}
		return nil, fmt.Errorf("reservations: insert: %w", err)
	}
	return reservation, nil
}

func (r *PostgresRepository) getByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*Reservation, error) {
	reservation, err := scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key))
	if err != nil {
		return nil, fmt.Errorf("reservations: load by idempotency key: %w", err)
	}
	return reservation, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, tenantID, reservationID uuid.UUID) (*Reservation, error) {
	reservation, err := scanReservation(r.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE tenant_id = $1 AND id = $2`,
		tenantID, reservationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reservations: load: %w", err)
	}
	return reservation, nil
}

func (r *PostgresRepository) List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]*Reservation, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE tenant_id = $1`
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reservations: list: %w", err)
	}
	defer rows.Close()

	var out []*Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("reservations: scan: %w", err)
		}
		out = append(out, reservation)
	}
	return out, rows.Err()
}

// Transition moves a reservation along a direct edge and appends the history
// event in the same transaction. converted is rejected here outright.
func (r *PostgresRepository) Transition(ctx context.Context, tenantID, reservationID uuid.UUID, to Status, actor, note string) (*Reservation, error) {
	if to == StatusConverted {
		return nil, ErrIllegalDirectTransition
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("reservations: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	reservation, err := scanReservation(tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, reservationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reservations: lock reservation: %w", err)
	}

	if reservation.Status == to {
		return reservation, nil
	}
	if !CanTransition(reservation.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, reservation.Status, to)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE reservations SET status = $1 WHERE tenant_id = $2 AND id = $3`,
		to, tenantID, reservationID); err != nil {
		return nil, fmt.Errorf("reservations: update status: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservation_status_events (id, tenant_id, reservation_id, from_status, to_status, action, actor_email, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), tenantID, reservationID, reservation.Status, to, ActionStatusUpdate, actor, note, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("reservations: append status event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("reservations: commit transition: %w", err)
	}

	reservation.Status = to
	return reservation, nil
}

func (r *PostgresRepository) History(ctx context.Context, tenantID, reservationID uuid.UUID) ([]StatusEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, reservation_id, from_status, to_status, action, COALESCE(actor_email, ''), COALESCE(note, ''), created_at
		FROM reservation_status_events
		WHERE tenant_id = $1 AND reservation_id = $2
		ORDER BY created_at`,
		tenantID, reservationID)
	if err != nil {
		return nil, fmt.Errorf("reservations: load history: %w", err)
	}
	defer rows.Close()

	var out []StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ReservationID, &e.FromStatus, &e.ToStatus, &e.Action, &e.ActorEmail, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("reservations: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ExpireStale(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("reservations: begin expire sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM reservations
		WHERE tenant_id = $1 AND status = $2 AND created_at < $3
		FOR UPDATE SKIP LOCKED`,
		tenantID, StatusNew, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reservations: find stale: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("reservations: scan stale id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.Exec(ctx,
			`UPDATE reservations SET status = $1 WHERE tenant_id = $2 AND id = $3`,
			StatusExpired, tenantID, id); err != nil {
			return 0, fmt.Errorf("reservations: expire %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservation_status_events (id, tenant_id, reservation_id, from_status, to_status, action, actor_email, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), tenantID, id, StatusNew, StatusExpired, ActionStatusUpdate, "", "stale sweep", now); err != nil {
			return 0, fmt.Errorf("reservations: append expire event: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("reservations: commit expire sweep: %w", err)
	}
	return len(ids), nil
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[Status]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM reservations
		WHERE tenant_id = $1 GROUP BY status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reservations: count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("reservations: scan count: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

// InMemoryRepository keeps reservations in maps, for tests.
type InMemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Reservation
	events map[uuid.UUID][]StatusEvent
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:   make(map[uuid.UUID]*Reservation),
		events: make(map[uuid.UUID][]StatusEvent),
	}
}

func (r *InMemoryRepository) Create(_ context.Context, reservation *Reservation) (*Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reservation.IdempotencyKey != "" {
		for _, existing := range r.byID {
			if existing.TenantID == reservation.TenantID && existing.IdempotencyKey == reservation.IdempotencyKey {
				copied := *existing
				return &copied, nil
			}
		}
	}
	copied := *reservation
	r.byID[reservation.ID] = &copied
	out := copied
	return &out, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, tenantID, reservationID uuid.UUID) (*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reservation, ok := r.byID[reservationID]
	if !ok || reservation.TenantID != tenantID {
		return nil, ErrReservationNotFound
	}
	copied := *reservation
	return &copied, nil
}

func (r *InMemoryRepository) List(_ context.Context, tenantID uuid.UUID, filter ListFilter) ([]*Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	var all []*Reservation
	for _, res := range r.byID {
		if res.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && res.Status != filter.Status {
			continue
		}
		copied := *res
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (r *InMemoryRepository) Transition(_ context.Context, tenantID, reservationID uuid.UUID, to Status, actor, note string) (*Reservation, error) {
	if to == StatusConverted {
		return nil, ErrIllegalDirectTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	reservation, ok := r.byID[reservationID]
	if !ok || reservation.TenantID != tenantID {
		return nil, ErrReservationNotFound
	}
	if reservation.Status == to {
		copied := *reservation
		return &copied, nil
	}
	if !CanTransition(reservation.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, reservation.Status, to)
	}
	r.events[reservationID] = append(r.events[reservationID], StatusEvent{
		ID:            uuid.New(),
		TenantID:      tenantID,
		ReservationID: reservationID,
		FromStatus:    reservation.Status,
		ToStatus:      to,
		Action:        ActionStatusUpdate,
		ActorEmail:    actor,
		Note:          note,
		CreatedAt:     time.Now().UTC(),
	})
	reservation.Status = to
	copied := *reservation
	return &copied, nil
}

// MarkConverted is the conversion flow's back door to the converted status.
// Direct status patches can never reach it.
func (r *InMemoryRepository) MarkConverted(_ context.Context, tenantID, reservationID uuid.UUID, actor string, visitID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reservation, ok := r.byID[reservationID]
	if !ok || reservation.TenantID != tenantID {
		return ErrReservationNotFound
	}
	r.events[reservationID] = append(r.events[reservationID], StatusEvent{
		ID:            uuid.New(),
		TenantID:      tenantID,
		ReservationID: reservationID,
		FromStatus:    reservation.Status,
		ToStatus:      StatusConverted,
		Action:        ActionConvertedToVisit,
		ActorEmail:    actor,
		Note:          "visit_id=" + visitID.String(),
		CreatedAt:     time.Now().UTC(),
	})
	reservation.Status = StatusConverted
	return nil
}

func (r *InMemoryRepository) History(_ context.Context, tenantID, reservationID uuid.UUID) ([]StatusEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.events[reservationID]
	out := make([]StatusEvent, 0, len(events))
	for _, e := range events {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) ExpireStale(_ context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	now := time.Now().UTC()
	for _, reservation := range r.byID {
		if reservation.TenantID != tenantID || reservation.Status != StatusNew || !reservation.CreatedAt.Before(cutoff) {
			continue
		}
		r.events[reservation.ID] = append(r.events[reservation.ID], StatusEvent{
			ID:            uuid.New(),
			TenantID:      tenantID,
			ReservationID: reservation.ID,
			FromStatus:    StatusNew,
			ToStatus:      StatusExpired,
			Action:        ActionStatusUpdate,
			Note:          "stale sweep",
			CreatedAt:     now,
		})
		reservation.Status = StatusExpired
		count++
	}
	return count, nil
}

func (r *InMemoryRepository) CountByStatus(_ context.Context, tenantID uuid.UUID) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Status]int)
	for _, reservation := range r.byID {
		if reservation.TenantID == tenantID {
			out[reservation.Status]++
		}
	}
	return out, nil
}
