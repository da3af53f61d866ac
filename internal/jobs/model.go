// Package jobs runs post-conversion side effects asynchronously with
// bounded retries and a dead-letter path.
package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is a background job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusDeadLetter Status = "dead_letter"
)

// Job types handled by the runner.
const (
	TypeCalendarSync = "calendar.sync"
	TypeExpireSweep  = "reservations.expire_sweep"
)

// Job is one queued unit of background work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	JobType     string          `json:"job_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ErrJobNotFound is returned when no job matches the id.
var ErrJobNotFound = errors.New("job not found")

// Backoff returns the delay before the given retry attempt, doubling from
// 30s and capped at one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= 8 {
		return time.Hour
	}
	seconds := 30 * (1 << (attempt - 1))
	if seconds > 3600 {
		seconds = 3600
	}
	return time.Duration(seconds) * time.Second
}
