package tenancy

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tenant is the isolation unit. Every other entity carries a tenant id and
// no query crosses tenant boundaries.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrTenantNotFound is returned when a slug resolves to no tenant.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidSlug is returned for empty or malformed tenant slugs.
	ErrInvalidSlug = errors.New("invalid tenant slug")
)

// NormalizeSlug lowercases and trims a tenant slug.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
