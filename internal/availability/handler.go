package availability

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

// Handler handles HTTP requests for availability days, blocks, and buffers.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a new availability handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type upsertDayRequest struct {
	EmployeeName string `json:"employee_name"`
	Day          string `json:"day"`
	IsDayOff     bool   `json:"is_day_off"`
	StartHour    *int   `json:"start_hour,omitempty"`
	EndHour      *int   `json:"end_hour,omitempty"`
	Note         string `json:"note,omitempty"`
}

// UpsertDay handles POST /api/availability/day requests.
func (h *Handler) UpsertDay(w http.ResponseWriter, r *http.Request) {
	var req upsertDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	dayDate, err := time.Parse("2006-01-02", req.Day)
	if err != nil {
		http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	day := &Day{
		ID:           uuid.New(),
		TenantID:     tenantID,
		EmployeeName: req.EmployeeName,
		Day:          dayDate,
		IsDayOff:     req.IsDayOff,
		StartHour:    req.StartHour,
		EndHour:      req.EndHour,
		Note:         req.Note,
	}
	if err := day.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.UpsertDay(r.Context(), day); err != nil {
		h.logger.Error("failed to upsert availability day", "error", err, "employee", req.EmployeeName)
		http.Error(w, "failed to save availability day", http.StatusInternalServerError)
		return
	}

	h.logger.Info("availability day saved",
		"employee", day.EmployeeName, "day", req.Day, "day_off", day.IsDayOff)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(day)
}

type createBlockRequest struct {
	EmployeeName string    `json:"employee_name"`
	StartDT      time.Time `json:"start_dt"`
	EndDT        time.Time `json:"end_dt"`
	Reason       string    `json:"reason,omitempty"`
}

// CreateBlock handles POST /api/availability/blocks requests.
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req createBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	block := &Block{
		ID:           uuid.New(),
		TenantID:     tenantID,
		EmployeeName: req.EmployeeName,
		StartDT:      req.StartDT,
		EndDT:        req.EndDT,
		Reason:       req.Reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := block.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.InsertBlock(r.Context(), block); err != nil {
		h.logger.Error("failed to create block", "error", err, "employee", req.EmployeeName)
		http.Error(w, "failed to create block", http.StatusInternalServerError)
		return
	}

	h.logger.Info("availability block created", "id", block.ID, "employee", block.EmployeeName)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(block)
}

// DeleteBlock handles DELETE /api/availability/blocks/{blockID} requests.
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
	if err != nil {
		http.Error(w, "invalid block id", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteBlock(r.Context(), tenantID, blockID); err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			http.Error(w, "block not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete block", "error", err, "block_id", blockID)
		http.Error(w, "failed to delete block", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type upsertBufferRequest struct {
	BeforeMin int `json:"before_min"`
	AfterMin  int `json:"after_min"`
}

// UpsertServiceBuffer handles POST /api/buffers/service/{name} requests.
func (h *Handler) UpsertServiceBuffer(w http.ResponseWriter, r *http.Request) {
	h.upsertBuffer(w, r, ScopeService)
}

// UpsertEmployeeBuffer handles POST /api/buffers/employee/{name} requests.
func (h *Handler) UpsertEmployeeBuffer(w http.ResponseWriter, r *http.Request) {
	h.upsertBuffer(w, r, ScopeEmployee)
}

func (h *Handler) upsertBuffer(w http.ResponseWriter, r *http.Request, scope BufferScope) {
	var req upsertBufferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantID(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}

	buffer := &Buffer{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Scope:     scope,
		Key:       chi.URLParam(r, "name"),
		BeforeMin: req.BeforeMin,
		AfterMin:  req.AfterMin,
	}
	if err := buffer.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.UpsertBuffer(r.Context(), buffer); err != nil {
		h.logger.Error("failed to upsert buffer", "error", err, "scope", scope, "key", buffer.Key)
		http.Error(w, "failed to save buffer", http.StatusInternalServerError)
		return
	}

	h.logger.Info("buffer saved",
		"scope", scope, "key", buffer.Key, "before_min", buffer.BeforeMin, "after_min", buffer.AfterMin)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(buffer)
}
