package slots

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/danieloza/salonos/internal/availability"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

// VisitLister supplies booked visit spans for one employee on one date.
type VisitLister interface {
	SpansForDay(ctx context.Context, tenantID uuid.UUID, employeeName string, day time.Time) ([]availability.VisitSpan, error)
}

// Handler handles GET /api/slots/recommendations requests. It loads the
// employee's day, blocks, buffers, and booked visits, reduces them to free
// intervals, and emits candidate starts.
type Handler struct {
	store  availability.Store
	visits VisitLister
	engine *availability.Engine
	logger *logging.Logger
}

// NewHandler creates a new slot recommendation handler.
func NewHandler(store availability.Store, visits VisitLister, engine *availability.Engine, logger *logging.Logger) *Handler {
	return &Handler{store: store, visits: visits, engine: engine, logger: logger}
}

// RecommendationsResponse is the response for slot recommendations.
type RecommendationsResponse struct {
	Day          string      `json:"day"`
	EmployeeName string      `json:"employee_name"`
	DurationMin  int         `json:"duration_min"`
	Slots        []time.Time `json:"slots"`
}

// Recommendations handles GET /api/slots/recommendations requests.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	employeeName := q.Get("employee_name")
	if employeeName == "" {
		http.Error(w, "employee_name is required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", q.Get("day"))
	if err != nil {
		http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	durationMin := intParam(q.Get("duration_min"), 60)
	stepMin := intParam(q.Get("step_min"), 15)
	limit := intParam(q.Get("limit"), 10)
	if durationMin <= 0 || stepMin <= 0 || limit <= 0 || limit > 100 {
		http.Error(w, "duration_min, step_min, and limit must be positive (limit <= 100)", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	dayRecord, err := h.store.GetDay(ctx, tenantID, employeeName, day)
	if err != nil {
		h.logger.Error("failed to load availability day", "error", err, "employee", employeeName)
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}
	blocks, err := h.store.ListBlocks(ctx, tenantID, employeeName, day)
	if err != nil {
		h.logger.Error("failed to load blocks", "error", err, "employee", employeeName)
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}
	serviceBuffers, err := h.store.ServiceBuffers(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to load service buffers", "error", err)
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}
	employeeBuffer, err := h.store.EmployeeBuffer(ctx, tenantID, employeeName)
	if err != nil {
		h.logger.Error("failed to load employee buffer", "error", err, "employee", employeeName)
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}
	visits, err := h.visits.SpansForDay(ctx, tenantID, employeeName, day)
	if err != nil {
		h.logger.Error("failed to load visits", "error", err, "employee", employeeName)
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}

	free := h.engine.FreeIntervals(day, dayRecord, blocks, visits, serviceBuffers, employeeBuffer)
	starts := Recommend(free, durationMin, stepMin, limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RecommendationsResponse{
		Day:          q.Get("day"),
		EmployeeName: employeeName,
		DurationMin:  durationMin,
		Slots:        starts,
	})
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
