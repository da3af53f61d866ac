package clients

import (
	"encoding/json"
	"net/http"

	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

// Handler serves the client lookup endpoint.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// ListResponse is the client search result.
type ListResponse struct {
	Clients []*Client `json:"clients"`
	Count   int       `json:"count"`
}

// List handles GET /api/clients requests, filtered by ?phone= or ?name=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenancy.FromContext(r.Context())
	if !ok {
		http.Error(w, "tenant not resolved", http.StatusInternalServerError)
		return
	}

	phone := r.URL.Query().Get("phone")
	name := r.URL.Query().Get("name")

	found, err := h.store.Search(r.Context(), tenant.ID, phone, name)
	if err != nil {
		h.logger.Error("client search failed", "error", err, "tenant_id", tenant.ID)
		http.Error(w, "failed to search clients", http.StatusInternalServerError)
		return
	}
	if found == nil {
		found = []*Client{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListResponse{Clients: found, Count: len(found)})
}
