package tenancy

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

// Store persists tenants.
type Store interface {
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	Create(ctx context.Context, tenant *Tenant) error
	// List returns every tenant, oldest first. The worker fans sweep jobs
	// out over it.
	List(ctx context.Context) ([]*Tenant, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed tenant store.
type PGStore struct {
	db querier
}

// NewPGStore creates a store backed by a pgx pool or transaction.
func NewPGStore(db querier) *PGStore {
	if db == nil {
		panic("tenancy: pgx querier required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRow(ctx, `
		SELECT id, slug, name, created_at
		FROM tenants WHERE slug = $1`, slug).
		Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy: load tenant: %w", err)
	}
	return &t, nil
}

func (s *PGStore) Create(ctx context.Context, tenant *Tenant) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tenants (id, slug, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO NOTHING`,
		tenant.ID, tenant.Slug, tenant.Name, tenant.CreatedAt)
	if err != nil {
		return fmt.Errorf("tenancy: insert tenant: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, slug, name, created_at
		FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("tenancy: list tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("tenancy: scan tenant: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// InMemoryStore keeps tenants in a map, for tests and local development.
type InMemoryStore struct {
	mu     sync.RWMutex
	bySlug map[string]*Tenant
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySlug: make(map[string]*Tenant)}
}

func (s *InMemoryStore) GetBySlug(_ context.Context, slug string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrTenantNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (s *InMemoryStore) Create(_ context.Context, tenant *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bySlug[tenant.Slug]; exists {
		return nil
	}
	copied := *tenant
	s.bySlug[tenant.Slug] = &copied
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tenant, 0, len(s.bySlug))
	for _, tenant := range s.bySlug {
		copied := *tenant
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Resolver maps tenant slugs to tenants.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up an existing tenant by slug. Used by the public endpoint,
// which must never create tenants.
func (r *Resolver) Resolve(ctx context.Context, slug string) (*Tenant, error) {
	normalized := NormalizeSlug(slug)
	if normalized == "" {
		return nil, ErrInvalidSlug
	}
	return r.store.GetBySlug(ctx, normalized)
}

// ResolveOrCreate looks up a tenant, creating it on first use. Used by the
// staff API where a fresh slug provisions an isolated partition.
func (r *Resolver) ResolveOrCreate(ctx context.Context, slug, name string) (*Tenant, error) {
	normalized := NormalizeSlug(slug)
	if normalized == "" {
		return nil, ErrInvalidSlug
	}
	tenant, err := r.store.GetBySlug(ctx, normalized)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}

	tenant = &Tenant{
		ID:        uuid.New(),
		Slug:      normalized,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if tenant.Name == "" {
		tenant.Name = normalized
	}
	if err := r.store.Create(ctx, tenant); err != nil {
		return nil, err
	}
	// A concurrent creator may have won; the stored row is authoritative.
	return r.store.GetBySlug(ctx, normalized)
}
