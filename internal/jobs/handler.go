package jobs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/danieloza/salonos/pkg/logging"
)

// Handler exposes operational endpoints for the job queue.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a new jobs ops handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// HealthResponse is the queue health snapshot.
type HealthResponse struct {
	Counts map[Status]int `json:"counts"`
}

// Health handles GET /ops/jobs/health requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Health(r.Context())
	if err != nil {
		h.logger.Error("job health query failed", "error", err)
		http.Error(w, "failed to load queue health", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Counts: counts})
}

// RetryDeadLetter handles POST /ops/jobs/{jobID}/retry requests.
func (h *Handler) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	if err := h.store.RetryDeadLetter(r.Context(), jobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "no dead-letter job with that id", http.StatusNotFound)
			return
		}
		h.logger.Error("dead letter retry failed", "error", err, "job_id", jobID)
		http.Error(w, "failed to retry job", http.StatusInternalServerError)
		return
	}

	h.logger.Info("dead letter job requeued", "job_id", jobID)
	w.WriteHeader(http.StatusAccepted)
}
