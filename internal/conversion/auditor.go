package conversion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/visits"
	"github.com/danieloza/salonos/pkg/logging"
)

// Issue kinds reported by the auditor.
const (
	IssueMissingVisit        = "converted_without_visit"
	IssueDanglingReservation = "visit_with_dangling_reservation"
)

// Issue is one integrity finding.
type Issue struct {
	Kind          string     `json:"kind"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	VisitID       *uuid.UUID `json:"visit_id,omitempty"`
}

// Report summarizes one reconciliation pass.
type Report struct {
	IssuesCount int     `json:"issues_count"`
	Issues      []Issue `json:"issues"`
	Truncated   bool    `json:"truncated"`
}

// DanglingVisit is a visit whose source reservation is missing or not
// converted.
type DanglingVisit struct {
	VisitID       uuid.UUID
	ReservationID uuid.UUID
}

// AuditStore serves the read-side reconciliation queries.
type AuditStore interface {
	// ConvertedWithoutVisit lists reservations claiming a conversion with no
	// matching visit.
	ConvertedWithoutVisit(ctx context.Context, tenantID uuid.UUID, limit int) ([]uuid.UUID, error)
	// DanglingVisitRefs lists visits whose source reservation reference does
	// not point at a converted reservation.
	DanglingVisitRefs(ctx context.Context, tenantID uuid.UUID, limit int) ([]DanglingVisit, error)
}

// Auditor runs read-side conversion reconciliation.
type Auditor struct {
	store  AuditStore
	logger *logging.Logger
}

// NewAuditor creates a new integrity auditor.
func NewAuditor(store AuditStore, logger *logging.Logger) *Auditor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Auditor{store: store, logger: logger}
}

// Audit reports up to limit issues of each kind. A healthy system reports
// issues_count == 0.
func (a *Auditor) Audit(ctx context.Context, tenantID uuid.UUID, limit int) (*Report, error) {
	if limit <= 0 {
		limit = 100
	}

	orphans, err := a.store.ConvertedWithoutVisit(ctx, tenantID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("audit: converted without visit: %w", err)
	}
	dangling, err := a.store.DanglingVisitRefs(ctx, tenantID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("audit: dangling visit refs: %w", err)
	}

	report := &Report{Issues: []Issue{}}
	if len(orphans) > limit {
		orphans = orphans[:limit]
		report.Truncated = true
	}
	if len(dangling) > limit {
		dangling = dangling[:limit]
		report.Truncated = true
	}
	for i := range orphans {
		id := orphans[i]
		report.Issues = append(report.Issues, Issue{Kind: IssueMissingVisit, ReservationID: &id})
	}
	for i := range dangling {
		d := dangling[i]
		report.Issues = append(report.Issues, Issue{
			Kind:          IssueDanglingReservation,
			ReservationID: &d.ReservationID,
			VisitID:       &d.VisitID,
		})
	}
	report.IssuesCount = len(report.Issues)

	if report.IssuesCount > 0 {
		a.logger.Warn("conversion integrity issues found",
			"tenant_id", tenantID, "count", report.IssuesCount)
	}
	return report, nil
}

// PGAuditStore runs the reconciliation queries on Postgres.
type PGAuditStore struct {
	db db
}

func NewPGAuditStore(db db) *PGAuditStore {
	if db == nil {
		panic("conversion: pgx pool required")
	}
	return &PGAuditStore{db: db}
}

func (s *PGAuditStore) ConvertedWithoutVisit(ctx context.Context, tenantID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id FROM reservations r
		WHERE r.tenant_id = $1 AND r.status = $2
		  AND NOT EXISTS (
		    SELECT 1 FROM visits v
		    WHERE v.tenant_id = r.tenant_id AND v.source_reservation_id = r.id)
		ORDER BY r.created_at
		LIMIT $3`,
		tenantID, reservations.StatusConverted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PGAuditStore) DanglingVisitRefs(ctx context.Context, tenantID uuid.UUID, limit int) ([]DanglingVisit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT v.id, v.source_reservation_id FROM visits v
		WHERE v.tenant_id = $1 AND v.source_reservation_id IS NOT NULL
		  AND NOT EXISTS (
		    SELECT 1 FROM reservations r
		    WHERE r.tenant_id = v.tenant_id AND r.id = v.source_reservation_id AND r.status = $2)
		ORDER BY v.created_at
		LIMIT $3`,
		tenantID, reservations.StatusConverted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DanglingVisit
	for rows.Next() {
		var d DanglingVisit
		if err := rows.Scan(&d.VisitID, &d.ReservationID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InMemoryAuditStore reconciles over the in-memory repositories.
type InMemoryAuditStore struct {
	reservations *reservations.InMemoryRepository
	visits       *visits.InMemoryRepository
}

func NewInMemoryAuditStore(res *reservations.InMemoryRepository, vis *visits.InMemoryRepository) *InMemoryAuditStore {
	return &InMemoryAuditStore{reservations: res, visits: vis}
}

func (s *InMemoryAuditStore) ConvertedWithoutVisit(ctx context.Context, tenantID uuid.UUID, limit int) ([]uuid.UUID, error) {
	converted, err := s.reservations.List(ctx, tenantID, reservations.ListFilter{Status: reservations.StatusConverted, Limit: limit})
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, r := range converted {
		if _, err := s.visits.GetBySourceReservation(ctx, tenantID, r.ID); err != nil {
			out = append(out, r.ID)
		}
	}
	return out, nil
}

func (s *InMemoryAuditStore) DanglingVisitRefs(ctx context.Context, tenantID uuid.UUID, limit int) ([]DanglingVisit, error) {
	refs := s.visits.SourceRefs(tenantID)
	var out []DanglingVisit
	for _, ref := range refs {
		reservation, err := s.reservations.GetByID(ctx, tenantID, ref.ReservationID)
		if err != nil || reservation.Status != reservations.StatusConverted {
			out = append(out, DanglingVisit{VisitID: ref.VisitID, ReservationID: ref.ReservationID})
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
