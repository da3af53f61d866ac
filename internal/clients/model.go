package clients

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is the per-tenant CRM aggregate, one row per person. Uniqueness is
// on (tenant, name); repeat bookings under the same name fold into one record.
type Client struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	VisitsCount int       `json:"visits_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrClientNotFound = errors.New("client not found")
	ErrInvalidClient  = errors.New("invalid client")
)

// NormalizeName trims and collapses whitespace so "Magda  Nowak " and
// "Magda Nowak" hit the same row.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
