package availability

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BufferScope distinguishes service-level from employee-level buffers.
type BufferScope string

const (
	ScopeService  BufferScope = "service"
	ScopeEmployee BufferScope = "employee"
)

// Day is an employee's working window for one calendar date. One row per
// (tenant, employee, date), upserted rather than appended.
type Day struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	EmployeeName string    `json:"employee_name"`
	Day          time.Time `json:"day"`
	IsDayOff     bool      `json:"is_day_off"`
	StartHour    *int      `json:"start_hour,omitempty"`
	EndHour      *int      `json:"end_hour,omitempty"`
	Note         string    `json:"note,omitempty"`
}

// Block is a manual hold on an employee's time. Multiple blocks per day are
// allowed and never count as free.
type Block struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	EmployeeName string    `json:"employee_name"`
	StartDT      time.Time `json:"start_dt"`
	EndDT        time.Time `json:"end_dt"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Buffer is padding required around a visit, attributed to a service or an
// employee. At most one active buffer per (scope, key).
type Buffer struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	Scope     BufferScope `json:"scope"`
	Key       string      `json:"key"`
	BeforeMin int         `json:"before_min"`
	AfterMin  int         `json:"after_min"`
}

var (
	// ErrInvalidDay is returned when a day upsert carries a malformed window.
	ErrInvalidDay = errors.New("invalid availability day")

	// ErrInvalidBlock is returned when a block's end does not follow its start.
	ErrInvalidBlock = errors.New("invalid availability block")

	// ErrInvalidBuffer is returned for negative buffer minutes or a blank key.
	ErrInvalidBuffer = errors.New("invalid buffer")

	// ErrBlockNotFound is returned when deleting a nonexistent block.
	ErrBlockNotFound = errors.New("availability block not found")
)

// Validate checks a day upsert before it reaches the store.
func (d *Day) Validate() error {
	if strings.TrimSpace(d.EmployeeName) == "" {
		return ErrInvalidDay
	}
	if d.StartHour != nil && d.EndHour != nil && *d.StartHour >= *d.EndHour {
		return ErrInvalidDay
	}
	if d.StartHour != nil && (*d.StartHour < 0 || *d.StartHour > 23) {
		return ErrInvalidDay
	}
	if d.EndHour != nil && (*d.EndHour < 1 || *d.EndHour > 24) {
		return ErrInvalidDay
	}
	return nil
}

// Validate checks a block before insertion.
func (b *Block) Validate() error {
	if strings.TrimSpace(b.EmployeeName) == "" {
		return ErrInvalidBlock
	}
	if !b.EndDT.After(b.StartDT) {
		return ErrInvalidBlock
	}
	return nil
}

// Validate checks a buffer upsert.
func (b *Buffer) Validate() error {
	if strings.TrimSpace(b.Key) == "" {
		return ErrInvalidBuffer
	}
	if b.Scope != ScopeService && b.Scope != ScopeEmployee {
		return ErrInvalidBuffer
	}
	if b.BeforeMin < 0 || b.AfterMin < 0 {
		return ErrInvalidBuffer
	}
	return nil
}
