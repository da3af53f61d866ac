package conversion

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/visits"
)

// JobEnqueuer receives the background jobs a conversion schedules.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload map[string]any) error
}

// InMemoryStore serializes conversions over the in-memory repositories with
// one mutex held from Begin to Commit or Rollback, standing in for the row
// lock Postgres provides.
type InMemoryStore struct {
	mu           sync.Mutex
	reservations *reservations.InMemoryRepository
	visits       *visits.InMemoryRepository
	jobs         JobEnqueuer
}

func NewInMemoryStore(res *reservations.InMemoryRepository, vis *visits.InMemoryRepository) *InMemoryStore {
	return &InMemoryStore{reservations: res, visits: vis}
}

// WithJobs attaches the queue that receives jobs enqueued during conversions.
func (s *InMemoryStore) WithJobs(jobs JobEnqueuer) *InMemoryStore {
	s.jobs = jobs
	return s
}

func (s *InMemoryStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	return &memTx{store: s}, nil
}

func (s *InMemoryStore) VisitBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*visits.Visit, error) {
	return s.visits.GetBySourceReservation(ctx, tenantID, reservationID)
}

type memTx struct {
	store *InMemoryStore
	done  bool
}

func (t *memTx) ReservationForUpdate(ctx context.Context, tenantID, reservationID uuid.UUID) (*reservations.Reservation, error) {
	return t.store.reservations.GetByID(ctx, tenantID, reservationID)
}

func (t *memTx) VisitBySourceReservation(ctx context.Context, tenantID, reservationID uuid.UUID) (*visits.Visit, error) {
	return t.store.visits.GetBySourceReservation(ctx, tenantID, reservationID)
}

func (t *memTx) InsertVisit(ctx context.Context, visit *visits.Visit) error {
	return t.store.visits.Create(ctx, visit)
}

func (t *memTx) MarkConverted(ctx context.Context, tenantID, reservationID uuid.UUID, _ reservations.Status, actor string, visitID uuid.UUID) error {
	return t.store.reservations.MarkConverted(ctx, tenantID, reservationID, actor, visitID)
}

func (t *memTx) EnqueueJob(ctx context.Context, tenantID uuid.UUID, jobType string, payload map[string]any) error {
	if t.store.jobs == nil {
		return nil
	}
	return t.store.jobs.Enqueue(ctx, tenantID, jobType, payload)
}

func (t *memTx) Commit(context.Context) error {
	t.release()
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.release()
	return nil
}

func (t *memTx) release() {
	if !t.done {
		t.done = true
		t.store.mu.Unlock()
	}
}
