package conversion

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danieloza/salonos/internal/observability/metrics"
	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

// Handler handles conversion and integrity audit requests.
type Handler struct {
	coordinator *Coordinator
	auditor     *Auditor
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
}

// NewHandler creates a new conversion handler. m may be nil.
func NewHandler(coordinator *Coordinator, auditor *Auditor, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	return &Handler{coordinator: coordinator, auditor: auditor, metrics: m, logger: logger}
}

type convertRequest struct {
	EmployeeName string     `json:"employee_name"`
	Price        float64    `json:"price"`
	DurationMin  int        `json:"duration_min,omitempty"`
	StartDT      *time.Time `json:"start_dt,omitempty"`
	ServiceName  string     `json:"service_name,omitempty"`
	ClientName   string     `json:"client_name,omitempty"`
}

// Convert handles POST /api/reservations/{reservationID}/convert requests.
// Replayed conversions return the existing visit with 200 rather than an
// error.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	reservationID, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		http.Error(w, "invalid reservation id", http.StatusBadRequest)
		return
	}

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenant, ok := tenancy.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	actor, ok := tenancy.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor identity", http.StatusBadRequest)
		return
	}

	visit, err := h.coordinator.Convert(r.Context(), tenant.ID, Request{
		ReservationID: reservationID,
		EmployeeName:  req.EmployeeName,
		Price:         req.Price,
		DurationMin:   req.DurationMin,
		Actor:         actor,
		StartDT:       req.StartDT,
		ServiceName:   req.ServiceName,
		ClientName:    req.ClientName,
	})
	if err != nil {
		var alreadyErr *AlreadyConvertedError
		switch {
		case errors.Is(err, reservations.ErrReservationNotFound):
			http.Error(w, "reservation not found", http.StatusNotFound)
		case errors.As(err, &alreadyErr):
			h.metrics.ObserveConversion(tenant.Slug, "rejected")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error": alreadyErr.Error(),
				"visit": alreadyErr.Visit,
			})
		case errors.Is(err, ErrNotConvertible):
			h.metrics.ObserveConversion(tenant.Slug, "rejected")
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrIntegrity):
			h.logger.Error("conversion integrity failure", "error", err, "reservation_id", reservationID)
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("conversion failed", "error", err, "reservation_id", reservationID)
			http.Error(w, "conversion failed", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.ObserveConversion(tenant.Slug, "created")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(visit)
}

// Integrity handles GET /api/integrity/conversions requests.
func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	report, err := h.auditor.Audit(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error("integrity audit failed", "error", err)
		http.Error(w, "audit failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
