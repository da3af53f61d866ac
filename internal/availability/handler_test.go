package availability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

func testRouter(store Store) (*chi.Mux, uuid.UUID) {
	handler := NewHandler(store, logging.Default())
	tenant := &tenancy.Tenant{ID: uuid.New(), Slug: "studio-luna", Name: "Studio Luna"}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithTenant(req.Context(), tenant)))
		})
	})
	r.Post("/api/availability/day", handler.UpsertDay)
	r.Post("/api/availability/blocks", handler.CreateBlock)
	r.Delete("/api/availability/blocks/{blockID}", handler.DeleteBlock)
	r.Post("/api/buffers/service/{name}", handler.UpsertServiceBuffer)
	r.Post("/api/buffers/employee/{name}", handler.UpsertEmployeeBuffer)
	return r, tenant.ID
}

func TestUpsertDayEndpoint(t *testing.T) {
	store := NewInMemoryStore()
	router, tenantID := testRouter(store)

	body := `{"employee_name": "Magda", "day": "2026-09-14", "start_hour": 10, "end_hour": 16}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/availability/day", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	day, err := store.GetDay(context.Background(), tenantID, "Magda", date(0, 0))
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.Equal(t, 10, *day.StartHour)
}

func TestUpsertDayRejectsBadWindow(t *testing.T) {
	router, _ := testRouter(NewInMemoryStore())

	body := `{"employee_name": "Magda", "day": "2026-09-14", "start_hour": 16, "end_hour": 10}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/availability/day", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlockLifecycle(t *testing.T) {
	store := NewInMemoryStore()
	router, tenantID := testRouter(store)

	body := `{"employee_name": "Magda", "start_dt": "2026-09-14T12:00:00Z", "end_dt": "2026-09-14T13:00:00Z", "reason": "lunch"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/availability/blocks", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Block
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "lunch", created.Reason)

	blocks, err := store.ListBlocks(context.Background(), tenantID, "Magda", date(0, 0))
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/availability/blocks/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/availability/blocks/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlockRejectsInvertedRange(t *testing.T) {
	router, _ := testRouter(NewInMemoryStore())

	body := `{"employee_name": "Magda", "start_dt": "2026-09-14T13:00:00Z", "end_dt": "2026-09-14T12:00:00Z"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/availability/blocks", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBufferEndpoints(t *testing.T) {
	store := NewInMemoryStore()
	router, tenantID := testRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/buffers/service/manicure",
		bytes.NewBufferString(`{"before_min": 10, "after_min": 15}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/buffers/employee/Magda",
		bytes.NewBufferString(`{"before_min": 5, "after_min": 5}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	svc, err := store.ServiceBuffers(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 10, svc["manicure"].BeforeMin)

	emp, err := store.EmployeeBuffer(context.Background(), tenantID, "Magda")
	require.NoError(t, err)
	require.NotNil(t, emp)

	// Negative minutes are rejected.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/buffers/service/manicure",
		bytes.NewBufferString(`{"before_min": -1, "after_min": 0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
