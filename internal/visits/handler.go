package visits

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

// Handler handles HTTP requests for visits.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new visits handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

type createVisitRequest struct {
	ClientName   string    `json:"client_name"`
	Phone        string    `json:"phone,omitempty"`
	ServiceName  string    `json:"service_name"`
	EmployeeName string    `json:"employee_name"`
	StartDT      time.Time `json:"start_dt"`
	DurationMin  int       `json:"duration_min"`
	Price        float64   `json:"price"`
}

// Create handles POST /api/visits requests. Visits created directly by staff
// start scheduled with no source reservation.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	visit := &Visit{
		ID:           uuid.New(),
		TenantID:     tenantID,
		ClientName:   req.ClientName,
		Phone:        req.Phone,
		ServiceName:  req.ServiceName,
		EmployeeName: req.EmployeeName,
		StartDT:      req.StartDT,
		DurationMin:  req.DurationMin,
		Price:        req.Price,
		Status:       StatusScheduled,
		CreatedAt:    time.Now().UTC(),
	}
	if err := ValidateNew(visit); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.Create(r.Context(), visit); err != nil {
		h.logger.Error("failed to create visit", "error", err, "client", req.ClientName)
		http.Error(w, "failed to create visit", http.StatusInternalServerError)
		return
	}

	h.logger.Info("visit created",
		"id", visit.ID, "employee", visit.EmployeeName, "service", visit.ServiceName)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(visit)
}

// ListResponse is the day schedule view.
type ListResponse struct {
	Day    string   `json:"day"`
	Visits []*Visit `json:"visits"`
	Count  int      `json:"count"`
}

// List handles GET /api/visits?day=YYYY-MM-DD&employee_name= requests.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	day, err := time.Parse("2006-01-02", r.URL.Query().Get("day"))
	if err != nil {
		http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	employeeName := r.URL.Query().Get("employee_name")

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	found, err := h.repo.ListForDay(r.Context(), tenantID, employeeName, day)
	if err != nil {
		h.logger.Error("failed to list visits", "error", err, "day", day)
		http.Error(w, "failed to list visits", http.StatusInternalServerError)
		return
	}
	if found == nil {
		found = []*Visit{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{
		Day:    day.Format("2006-01-02"),
		Visits: found,
		Count:  len(found),
	})
}

type updateStatusRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note,omitempty"`
}

// UpdateStatus handles PATCH /api/visits/{visitID}/status requests.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	visitID, err := uuid.Parse(chi.URLParam(r, "visitID"))
	if err != nil {
		http.Error(w, "invalid visit id", http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !ValidStatus(req.Status) {
		http.Error(w, "unknown visit status", http.StatusBadRequest)
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

	visit, err := h.repo.Transition(r.Context(), tenantID, visitID, req.Status, actor, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, ErrVisitNotFound):
			http.Error(w, "visit not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to transition visit", "error", err, "visit_id", visitID)
			http.Error(w, "failed to update status", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("visit status updated", "id", visit.ID, "status", visit.Status, "actor", actor)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(visit)
}

// HistoryResponse is the response for a visit's status history.
type HistoryResponse struct {
	VisitID uuid.UUID     `json:"visit_id"`
	Events  []StatusEvent `json:"events"`
	Count   int           `json:"count"`
}

// History handles GET /api/visits/{visitID}/history requests.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	visitID, err := uuid.Parse(chi.URLParam(r, "visitID"))
	if err != nil {
		http.Error(w, "invalid visit id", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	if _, err := h.repo.GetByID(r.Context(), tenantID, visitID); err != nil {
		if errors.Is(err, ErrVisitNotFound) {
			http.Error(w, "visit not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load visit", "error", err, "visit_id", visitID)
		http.Error(w, "failed to load visit", http.StatusInternalServerError)
		return
	}

	events, err := h.repo.History(r.Context(), tenantID, visitID)
	if err != nil {
		h.logger.Error("failed to load visit history", "error", err, "visit_id", visitID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{VisitID: visitID, Events: events, Count: len(events)})
}
