package clients

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists client records.
type Store interface {
	// GetOrCreate returns the client with the given name for the tenant,
	// creating it first if missing. A non-empty phone refreshes the stored
	// phone on an existing record.
	GetOrCreate(ctx context.Context, tenantID uuid.UUID, name, phone string) (*Client, error)
	IncrementVisits(ctx context.Context, tenantID, clientID uuid.UUID) error
	// Search filters by exact phone or name prefix. Both filters empty lists
	// everything for the tenant, newest first.
	Search(ctx context.Context, tenantID uuid.UUID, phone, namePrefix string) ([]*Client, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed client store.
type PGStore struct {
	db querier
}

func NewPGStore(db querier) *PGStore {
	if db == nil {
		panic("clients: pgx pool required")
	}
	return &PGStore{db: db}
}

const clientColumns = `id, tenant_id, name, phone, visits_count, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.VisitsCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) GetOrCreate(ctx context.Context, tenantID uuid.UUID, name, phone string) (*Client, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidClient)
	}
	now := time.Now().UTC()
	client, err := scanClient(s.db.QueryRow(ctx, `
		INSERT INTO clients (id, tenant_id, name, phone, visits_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (tenant_id, name) DO UPDATE
		SET phone = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE clients.phone END,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+clientColumns,
		uuid.New(), tenantID, name, phone, now))
	if err != nil {
		return nil, fmt.Errorf("clients: get or create: %w", err)
	}
	return client, nil
}

func (s *PGStore) IncrementVisits(ctx context.Context, tenantID, clientID uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE clients SET visits_count = visits_count + 1, updated_at = $1
		WHERE tenant_id = $2 AND id = $3`,
		time.Now().UTC(), tenantID, clientID)
	if err != nil {
		return fmt.Errorf("clients: increment visits: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (s *PGStore) Search(ctx context.Context, tenantID uuid.UUID, phone, namePrefix string) ([]*Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE tenant_id = $1`
	args := []any{tenantID}
	if phone != "" {
		args = append(args, phone)
		query += fmt.Sprintf(" AND phone = $%d", len(args))
	}
	if namePrefix != "" {
		args = append(args, NormalizeName(namePrefix)+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clients: search: %w", err)
	}
	defer rows.Close()

	var out []*Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("clients: scan: %w", err)
		}
		out = append(out, client)
	}
	return out, rows.Err()
}

// InMemoryStore keeps clients in a map, for tests.
type InMemoryStore struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{clients: make(map[string]*Client)}
}

func memKey(tenantID uuid.UUID, name string) string {
	return tenantID.String() + "|" + strings.ToLower(name)
}

func (s *InMemoryStore) GetOrCreate(_ context.Context, tenantID uuid.UUID, name, phone string) (*Client, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidClient)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memKey(tenantID, name)
	now := time.Now().UTC()
	if existing, ok := s.clients[key]; ok {
		if phone != "" {
			existing.Phone = phone
		}
		existing.UpdatedAt = now
		copied := *existing
		return &copied, nil
	}

	client := &Client{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.clients[key] = client
	copied := *client
	return &copied, nil
}

func (s *InMemoryStore) IncrementVisits(_ context.Context, tenantID, clientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.TenantID == tenantID && c.ID == clientID {
			c.VisitsCount++
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrClientNotFound
}

func (s *InMemoryStore) Search(_ context.Context, tenantID uuid.UUID, phone, namePrefix string) ([]*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := strings.ToLower(NormalizeName(namePrefix))
	var out []*Client
	for _, c := range s.clients {
		if c.TenantID != tenantID {
			continue
		}
		if phone != "" && c.Phone != phone {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToLower(c.Name), prefix) {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
