package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSchedule(t *testing.T) {
	assert.Equal(t, 30*time.Second, Backoff(1))
	assert.Equal(t, 60*time.Second, Backoff(2))
	assert.Equal(t, 240*time.Second, Backoff(4))
	assert.Equal(t, 1920*time.Second, Backoff(7))
	assert.Equal(t, time.Hour, Backoff(8))
	assert.Equal(t, time.Hour, Backoff(40))
	assert.Equal(t, 30*time.Second, Backoff(0))
}

func TestClaimOrderAndLifecycle(t *testing.T) {
	store := NewInMemoryStore(5)
	tenantID := uuid.New()
	require.NoError(t, store.Enqueue(context.Background(), tenantID, TypeCalendarSync, map[string]any{"visit_id": "a"}))

	job, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)

	// Queue drained; running job is not reclaimable yet.
	none, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, store.Complete(context.Background(), job.ID))
	stored, ok := store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, stored.Status)
}

func TestFailReschedulesWithBackoff(t *testing.T) {
	clock := time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(5).WithClock(func() time.Time { return clock })
	require.NoError(t, store.Enqueue(context.Background(), uuid.New(), TypeCalendarSync, nil))

	job, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Fail(context.Background(), job, errors.New("webhook returned 503")))

	stored, _ := store.Get(job.ID)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, "webhook returned 503", stored.LastError)
	assert.Equal(t, clock.Add(30*time.Second), stored.RunAt)

	// Not due yet.
	none, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, none)

	clock = clock.Add(31 * time.Second)
	again, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	clock := time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(2).WithClock(func() time.Time { return clock })
	require.NoError(t, store.Enqueue(context.Background(), uuid.New(), TypeCalendarSync, nil))

	for i := 0; i < 2; i++ {
		clock = clock.Add(2 * time.Hour)
		job, err := store.ClaimNext(context.Background())
		require.NoError(t, err)
		require.NotNil(t, job)
		require.NoError(t, store.Fail(context.Background(), job, errors.New("still down")))
	}

	jobs := store.All()
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusDeadLetter, jobs[0].Status)

	// Dead-letter jobs never get claimed.
	clock = clock.Add(24 * time.Hour)
	none, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRetryDeadLetterResetsAttempts(t *testing.T) {
	clock := time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(1).WithClock(func() time.Time { return clock })
	require.NoError(t, store.Enqueue(context.Background(), uuid.New(), TypeCalendarSync, nil))

	job, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Fail(context.Background(), job, errors.New("down")))

	require.NoError(t, store.RetryDeadLetter(context.Background(), job.ID))
	stored, _ := store.Get(job.ID)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 0, stored.Attempts)

	// Retrying a non-dead-letter job is a not-found.
	err = store.RetryDeadLetter(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestReclaimStale(t *testing.T) {
	clock := time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(5).WithClock(func() time.Time { return clock })
	require.NoError(t, store.Enqueue(context.Background(), uuid.New(), TypeCalendarSync, nil))

	_, err := store.ClaimNext(context.Background())
	require.NoError(t, err)

	// Fresh running job stays put.
	count, err := store.ReclaimStale(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	clock = clock.Add(20 * time.Minute)
	count, err = store.ReclaimStale(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reclaimed, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, 2, reclaimed.Attempts)
}

func TestHealthCounts(t *testing.T) {
	store := NewInMemoryStore(5)
	require.NoError(t, store.Enqueue(context.Background(), uuid.New(), TypeCalendarSync, nil))
	require.NoError(t, store.Enqueue(context.Background(), uuid.New(), TypeExpireSweep, nil))

	job, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Complete(context.Background(), job.ID))

	counts, err := store.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusCompleted])
}

func TestPGClaimNext(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGStore(mock, 5)
	id := uuid.New()
	tenantID := uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "job_type", "payload", "status", "attempts", "max_attempts",
		"run_at", "last_error", "created_at", "updated_at",
	}).AddRow(id, tenantID, TypeCalendarSync, []byte(`{"visit_id":"x"}`), StatusRunning, 1, 5, now, "", now, now)
	mock.ExpectQuery("UPDATE background_jobs SET status").
		WithArgs(StatusRunning, pgxmock.AnyArg(), StatusPending).
		WillReturnRows(rows)

	job, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, TypeCalendarSync, job.JobType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGEnqueue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPGStore(mock, 5)
	tenantID := uuid.New()

	mock.ExpectExec("INSERT INTO background_jobs").
		WithArgs(pgxmock.AnyArg(), tenantID, TypeCalendarSync, []byte(`{"visit_id":"x"}`),
			StatusPending, 5, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Enqueue(context.Background(), tenantID, TypeCalendarSync, map[string]any{"visit_id": "x"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
