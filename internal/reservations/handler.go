package reservations

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danieloza/salonos/internal/abuse"
	"github.com/danieloza/salonos/internal/observability/metrics"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

// Guard throttles public submissions.
type Guard interface {
	Check(ctx context.Context, ip, phone string) (*abuse.Result, error)
}

// Handler handles HTTP requests for reservations.
type Handler struct {
	repo    Repository
	guard   Guard
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewHandler creates a new reservations handler. guard and m may be nil.
func NewHandler(repo Repository, guard Guard, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	return &Handler{repo: repo, guard: guard, metrics: m, logger: logger}
}

type createReservationRequest struct {
	RequestedDT time.Time `json:"requested_dt"`
	ClientName  string    `json:"client_name"`
	Phone       string    `json:"phone"`
	ServiceName string    `json:"service_name"`
	Note        string    `json:"note,omitempty"`
}

// PublicCreate handles POST /public/{tenantSlug}/reservations requests. No
// auth; the abuse guard throttles per client IP and per phone.
func (h *Handler) PublicCreate(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenant, ok := tenancy.FromContext(r.Context())
	if !ok {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	if h.guard != nil {
		if res, err := h.guard.Check(r.Context(), clientIP(r), req.Phone); err != nil {
			h.metrics.ObserveRateLimited(res.Dimension)
			http.Error(w, "too many requests, try again later", http.StatusTooManyRequests)
			return
		}
	}

	reservation := &Reservation{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		RequestedDT:    req.RequestedDT,
		ClientName:     req.ClientName,
		Phone:          req.Phone,
		ServiceName:    req.ServiceName,
		Note:           req.Note,
		Status:         StatusNew,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		CreatedAt:      time.Now().UTC(),
	}
	if err := ValidateNew(reservation); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.repo.Create(r.Context(), reservation)
	if err != nil {
		h.logger.Error("failed to create reservation", "error", err, "tenant", tenant.Slug)
		http.Error(w, "failed to create reservation", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveReservationCreated(tenant.Slug)
	h.logger.Info("reservation created",
		"id", created.ID, "tenant", tenant.Slug, "service", created.ServiceName)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// ListResponse is the response for listing reservations.
type ListResponse struct {
	Reservations []*Reservation `json:"reservations"`
	Count        int            `json:"count"`
	Offset       int            `json:"offset"`
	Limit        int            `json:"limit"`
}

// List handles GET /api/reservations requests.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	filter := ListFilter{Limit: 50}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		if !ValidStatus(Status(status)) {
			http.Error(w, "unknown reservation status", http.StatusBadRequest)
			return
		}
		filter.Status = Status(status)
	}

	list, err := h.repo.List(r.Context(), tenantID, filter)
	if err != nil {
		h.logger.Error("failed to list reservations", "error", err)
		http.Error(w, "failed to list reservations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{
		Reservations: list,
		Count:        len(list),
		Offset:       filter.Offset,
		Limit:        filter.Limit,
	})
}

// MetricsResponse summarizes the reservation funnel for a tenant.
type MetricsResponse struct {
	Counts         map[Status]int `json:"counts"`
	Total          int            `json:"total"`
	ConversionRate float64        `json:"conversion_rate"`
}

// Metrics handles GET /api/reservations/metrics requests.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	counts, err := h.repo.CountByStatus(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to count reservations", "error", err)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}
	rate := 0.0
	if total > 0 {
		rate = float64(counts[StatusConverted]) / float64(total)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MetricsResponse{Counts: counts, Total: total, ConversionRate: rate})
}

type updateStatusRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note,omitempty"`
}

// UpdateStatus handles PATCH /api/reservations/{reservationID}/status
// requests. Setting converted directly is rejected; only conversion may.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	reservationID, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		http.Error(w, "invalid reservation id", http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !ValidStatus(req.Status) {
		http.Error(w, "unknown reservation status", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	actor, ok := tenancy.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor identity", http.StatusBadRequest)
		return
	}

	reservation, err := h.repo.Transition(r.Context(), tenantID, reservationID, req.Status, actor, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, ErrReservationNotFound):
			http.Error(w, "reservation not found", http.StatusNotFound)
		case errors.Is(err, ErrIllegalDirectTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to transition reservation", "error", err, "reservation_id", reservationID)
			http.Error(w, "failed to update status", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("reservation status updated",
		"id", reservation.ID, "status", reservation.Status, "actor", actor)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reservation)
}

// HistoryResponse is the response for a reservation's status history.
type HistoryResponse struct {
	ReservationID uuid.UUID     `json:"reservation_id"`
	Events        []StatusEvent `json:"events"`
	Count         int           `json:"count"`
}

// History handles GET /api/reservations/{reservationID}/history requests.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	reservationID, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		http.Error(w, "invalid reservation id", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	if _, err := h.repo.GetByID(r.Context(), tenantID, reservationID); err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			http.Error(w, "reservation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load reservation", "error", err, "reservation_id", reservationID)
		http.Error(w, "failed to load reservation", http.StatusInternalServerError)
		return
	}

	events, err := h.repo.History(r.Context(), tenantID, reservationID)
	if err != nil {
		h.logger.Error("failed to load reservation history", "error", err, "reservation_id", reservationID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{ReservationID: reservationID, Events: events, Count: len(events)})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
