package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists the background job queue.
type Store interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload map[string]any) error
	// ClaimNext atomically claims the oldest due pending job, marking it
	// running and bumping attempts. Returns nil when the queue is empty.
	ClaimNext(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, jobID uuid.UUID) error
	// Fail reschedules the job with backoff, or dead-letters it once the
	// attempt budget is spent.
	Fail(ctx context.Context, job *Job, jobErr error) error
	// ReclaimStale returns running jobs older than threshold to pending, for
	// workers that died mid-flight.
	ReclaimStale(ctx context.Context, threshold time.Duration) (int, error)
	RetryDeadLetter(ctx context.Context, jobID uuid.UUID) error
	Health(ctx context.Context) (map[Status]int, error)
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed job queue.
type PGStore struct {
	db          db
	maxAttempts int
}

func NewPGStore(db db, maxAttempts int) *PGStore {
	if db == nil {
		panic("jobs: pgx pool required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &PGStore{db: db, maxAttempts: maxAttempts}
}

func (s *PGStore) Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("jobs: marshal payload: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO background_jobs (id, tenant_id, job_type, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9)`,
		uuid.New(), tenantID, jobType, data, StatusPending, s.maxAttempts, now, now, now)
	if err != nil {
		return fmt.Errorf("jobs: enqueue: %w", err)
	}
	return nil
}

const jobColumns = `id, tenant_id, job_type, payload, status, attempts, max_attempts, run_at, COALESCE(last_error, ''), created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var payload []byte
	err := row.Scan(&j.ID, &j.TenantID, &j.JobType, &payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Payload = append([]byte(nil), payload...)
	return &j, nil
}

func (s *PGStore) ClaimNext(ctx context.Context) (*Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, `
		UPDATE background_jobs SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id = (
		    SELECT id FROM background_jobs
		    WHERE status = $3 AND run_at <= $2
		    ORDER BY run_at
		    FOR UPDATE SKIP LOCKED
		    LIMIT 1
		)
		RETURNING `+jobColumns,
		StatusRunning, time.Now().UTC(), StatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: claim next: %w", err)
	}
	return job, nil
}

func (s *PGStore) Complete(ctx context.Context, jobID uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE background_jobs SET status = $1, last_error = '', updated_at = $2 WHERE id = $3`,
		StatusCompleted, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("jobs: complete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PGStore) Fail(ctx context.Context, job *Job, jobErr error) error {
	now := time.Now().UTC()
	if job.Attempts >= job.MaxAttempts {
		_, err := s.db.Exec(ctx, `
			UPDATE background_jobs SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4`,
			StatusDeadLetter, jobErr.Error(), now, job.ID)
		if err != nil {
			return fmt.Errorf("jobs: dead letter: %w", err)
		}
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE background_jobs SET status = $1, last_error = $2, run_at = $3, updated_at = $4 WHERE id = $5`,
		StatusPending, jobErr.Error(), now.Add(Backoff(job.Attempts)), now, job.ID)
	if err != nil {
		return fmt.Errorf("jobs: reschedule: %w", err)
	}
	return nil
}

func (s *PGStore) ReclaimStale(ctx context.Context, threshold time.Duration) (int, error) {
	now := time.Now().UTC()
	ct, err := s.db.Exec(ctx, `
		UPDATE background_jobs SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4`,
		StatusPending, now, StatusRunning, now.Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("jobs: reclaim stale: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (s *PGStore) RetryDeadLetter(ctx context.Context, jobID uuid.UUID) error {
	now := time.Now().UTC()
	ct, err := s.db.Exec(ctx, `
		UPDATE background_jobs SET status = $1, attempts = 0, last_error = '', run_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`,
		StatusPending, now, jobID, StatusDeadLetter)
	if err != nil {
		return fmt.Errorf("jobs: retry dead letter: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PGStore) Health(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, COUNT(*) FROM background_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("jobs: health: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("jobs: scan health: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

// InMemoryStore keeps the queue in a map, for tests.
type InMemoryStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*Job
	maxAttempts int
	now         func() time.Time
}

func NewInMemoryStore(maxAttempts int) *InMemoryStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &InMemoryStore{
		jobs:        make(map[uuid.UUID]*Job),
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store clock, for backoff tests.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.now = now
	return s
}

func (s *InMemoryStore) Enqueue(_ context.Context, tenantID uuid.UUID, jobType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("jobs: marshal payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	id := uuid.New()
	s.jobs[id] = &Job{
		ID:          id,
		TenantID:    tenantID,
		JobType:     jobType,
		Payload:     data,
		Status:      StatusPending,
		MaxAttempts: s.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

func (s *InMemoryStore) ClaimNext(_ context.Context) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	var due []*Job
	for _, j := range s.jobs {
		if j.Status == StatusPending && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })

	job := due[0]
	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = now
	copied := *job
	return &copied, nil
}

func (s *InMemoryStore) Complete(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusCompleted
	job.LastError = ""
	job.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) Fail(_ context.Context, job *Job, jobErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	now := s.now()
	stored.LastError = jobErr.Error()
	stored.UpdatedAt = now
	if stored.Attempts >= stored.MaxAttempts {
		stored.Status = StatusDeadLetter
		return nil
	}
	stored.Status = StatusPending
	stored.RunAt = now.Add(Backoff(stored.Attempts))
	return nil
}

func (s *InMemoryStore) ReclaimStale(_ context.Context, threshold time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	count := 0
	for _, j := range s.jobs {
		if j.Status == StatusRunning && j.UpdatedAt.Before(now.Add(-threshold)) {
			j.Status = StatusPending
			j.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) RetryDeadLetter(_ context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != StatusDeadLetter {
		return ErrJobNotFound
	}
	now := s.now()
	job.Status = StatusPending
	job.Attempts = 0
	job.LastError = ""
	job.RunAt = now
	job.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) Health(_ context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Status]int)
	for _, j := range s.jobs {
		out[j.Status]++
	}
	return out, nil
}

// Get returns a stored job, for tests.
func (s *InMemoryStore) Get(jobID uuid.UUID) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// All returns every stored job, for tests.
func (s *InMemoryStore) All() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		copied := *j
		out = append(out, &copied)
	}
	return out
}
