package availability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists availability days, blocks, and buffers.
type Store interface {
	UpsertDay(ctx context.Context, day *Day) error
	GetDay(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) (*Day, error)
	InsertBlock(ctx context.Context, block *Block) error
	DeleteBlock(ctx context.Context, tenantID, blockID uuid.UUID) error
	ListBlocks(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]Block, error)
	UpsertBuffer(ctx context.Context, buffer *Buffer) error
	ServiceBuffers(ctx context.Context, tenantID uuid.UUID) (map[string]Buffer, error)
	EmployeeBuffer(ctx context.Context, tenantID uuid.UUID, employeeName string) (*Buffer, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed availability store.
type PGStore struct {
	db querier
}

func NewPGStore(db querier) *PGStore {
	if db == nil {
		panic("availability: pgx querier required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) UpsertDay(ctx context.Context, day *Day) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO availability_days (id, tenant_id, employee_name, day, is_day_off, start_hour, end_hour, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, employee_name, day) DO UPDATE SET
		    is_day_off = EXCLUDED.is_day_off,
		    start_hour = EXCLUDED.start_hour,
		    end_hour   = EXCLUDED.end_hour,
		    note       = EXCLUDED.note`,
		day.ID, day.TenantID, day.EmployeeName, day.Day, day.IsDayOff, day.StartHour, day.EndHour, day.Note)
	if err != nil {
		return fmt.Errorf("availability: upsert day: %w", err)
	}
	return nil
}

func (s *PGStore) GetDay(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) (*Day, error) {
	var d Day
	err := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, employee_name, day, is_day_off, start_hour, end_hour, COALESCE(note, '')
		FROM availability_days
		WHERE tenant_id = $1 AND employee_name = $2 AND day = $3`,
		tenantID, employeeName, day).
		Scan(&d.ID, &d.TenantID, &d.EmployeeName, &d.Day, &d.IsDayOff, &d.StartHour, &d.EndHour, &d.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("availability: load day: %w", err)
	}
	return &d, nil
}

func (s *PGStore) InsertBlock(ctx context.Context, block *Block) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO availability_blocks (id, tenant_id, employee_name, start_dt, end_dt, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		block.ID, block.TenantID, block.EmployeeName, block.StartDT, block.EndDT, block.Reason, block.CreatedAt)
	if err != nil {
		return fmt.Errorf("availability: insert block: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteBlock(ctx context.Context, tenantID, blockID uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		DELETE FROM availability_blocks WHERE tenant_id = $1 AND id = $2`, tenantID, blockID)
	if err != nil {
		return fmt.Errorf("availability: delete block: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (s *PGStore) ListBlocks(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]Block, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, employee_name, start_dt, end_dt, COALESCE(reason, ''), created_at
		FROM availability_blocks
		WHERE tenant_id = $1 AND employee_name = $2 AND start_dt < $4 AND end_dt > $3
		ORDER BY start_dt`,
		tenantID, employeeName, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("availability: list blocks: %w", err)
	}
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.ID, &b.TenantID, &b.EmployeeName, &b.StartDT, &b.EndDT, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("availability: scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PGStore) UpsertBuffer(ctx context.Context, buffer *Buffer) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO buffers (id, tenant_id, scope, key, before_min, after_min)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, scope, key) DO UPDATE SET
		    before_min = EXCLUDED.before_min,
		    after_min  = EXCLUDED.after_min`,
		buffer.ID, buffer.TenantID, buffer.Scope, buffer.Key, buffer.BeforeMin, buffer.AfterMin)
	if err != nil {
		return fmt.Errorf("availability: upsert buffer: %w", err)
	}
	return nil
}

func (s *PGStore) ServiceBuffers(ctx context.Context, tenantID uuid.UUID) (map[string]Buffer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, scope, key, before_min, after_min
		FROM buffers WHERE tenant_id = $1 AND scope = $2`,
		tenantID, ScopeService)
	if err != nil {
		return nil, fmt.Errorf("availability: list service buffers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Buffer)
	for rows.Next() {
		var b Buffer
		if err := rows.Scan(&b.ID, &b.TenantID, &b.Scope, &b.Key, &b.BeforeMin, &b.AfterMin); err != nil {
			return nil, fmt.Errorf("availability: scan buffer: %w", err)
		}
		out[b.Key] = b
	}
	return out, rows.Err()
}

func (s *PGStore) EmployeeBuffer(ctx context.Context, tenantID uuid.UUID, employeeName string) (*Buffer, error) {
	var b Buffer
	err := s.db.QueryRow(ctx, `
		SELECT id, tenant_id, scope, key, before_min, after_min
		FROM buffers WHERE tenant_id = $1 AND scope = $2 AND key = $3`,
		tenantID, ScopeEmployee, employeeName).
		Scan(&b.ID, &b.TenantID, &b.Scope, &b.Key, &b.BeforeMin, &b.AfterMin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("availability: load employee buffer: %w", err)
	}
	return &b, nil
}

// InMemoryStore keeps availability state in maps, for tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	days    map[string]*Day
	blocks  map[uuid.UUID]*Block
	buffers map[string]*Buffer
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		days:    make(map[string]*Day),
		blocks:  make(map[uuid.UUID]*Block),
		buffers: make(map[string]*Buffer),
	}
}

func dayKey(tenantID uuid.UUID, employeeName string, day time.Time) string {
	return tenantID.String() + "|" + employeeName + "|" + day.Format("2006-01-02")
}

func bufferKey(tenantID uuid.UUID, scope BufferScope, key string) string {
	return tenantID.String() + "|" + string(scope) + "|" + key
}

func (s *InMemoryStore) UpsertDay(_ context.Context, day *Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *day
	s.days[dayKey(day.TenantID, day.EmployeeName, day.Day)] = &copied
	return nil
}

func (s *InMemoryStore) GetDay(_ context.Context, tenantID uuid.UUID, employeeName string, day time.Time) (*Day, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.days[dayKey(tenantID, employeeName, day)]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, nil
}

func (s *InMemoryStore) InsertBlock(_ context.Context, block *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *block
	s.blocks[block.ID] = &copied
	return nil
}

func (s *InMemoryStore) DeleteBlock(_ context.Context, tenantID, blockID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[blockID]
	if !ok || block.TenantID != tenantID {
		return ErrBlockNotFound
	}
	delete(s.blocks, blockID)
	return nil
}

func (s *InMemoryStore) ListBlocks(_ context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	var out []Block
	for _, b := range s.blocks {
		if b.TenantID == tenantID && b.EmployeeName == employeeName &&
			b.StartDT.Before(dayEnd) && b.EndDT.After(dayStart) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpsertBuffer(_ context.Context, buffer *Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *buffer
	s.buffers[bufferKey(buffer.TenantID, buffer.Scope, buffer.Key)] = &copied
	return nil
}

func (s *InMemoryStore) ServiceBuffers(_ context.Context, tenantID uuid.UUID) (map[string]Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Buffer)
	for _, b := range s.buffers {
		if b.TenantID == tenantID && b.Scope == ScopeService {
			out[b.Key] = *b
		}
	}
	return out, nil
}

func (s *InMemoryStore) EmployeeBuffer(_ context.Context, tenantID uuid.UUID, employeeName string) (*Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.buffers[bufferKey(tenantID, ScopeEmployee, employeeName)]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}
