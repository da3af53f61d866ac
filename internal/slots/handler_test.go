package slots

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieloza/salonos/internal/availability"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/pkg/logging"
)

type stubVisits struct {
	spans []availability.VisitSpan
}

func (s *stubVisits) SpansForDay(context.Context, uuid.UUID, string, time.Time) ([]availability.VisitSpan, error) {
	return s.spans, nil
}

func newTestServer(store availability.Store, visits VisitLister) (*chi.Mux, *tenancy.Tenant) {
	handler := NewHandler(store, visits, availability.NewEngine(9, 18), logging.Default())
	tenant := &tenancy.Tenant{ID: uuid.New(), Slug: "studio-luna", Name: "Studio Luna"}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithTenant(req.Context(), tenant)))
		})
	})
	r.Get("/api/slots/recommendations", handler.Recommendations)
	return r, tenant
}

func TestRecommendationsEndpoint(t *testing.T) {
	store := availability.NewInMemoryStore()
	visits := &stubVisits{spans: []availability.VisitSpan{
		{Start: at(10, 0), DurationMin: 60, ServiceName: "manicure"},
	}}
	router, tenant := newTestServer(store, visits)

	require.NoError(t, store.UpsertBuffer(context.Background(), &availability.Buffer{
		ID: uuid.New(), TenantID: tenant.ID, Scope: availability.ScopeService,
		Key: "manicure", BeforeMin: 10, AfterMin: 15,
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/slots/recommendations?day=2026-09-14&employee_name=Magda&duration_min=60&step_min=30&limit=4", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RecommendationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	// Free time is [9:00,9:50) and [11:15,18:00); 60 min at a 30 min step
	// fits nowhere before the visit and walks forward after it.
	require.Len(t, resp.Slots, 4)
	assert.Equal(t, at(11, 15).UTC(), resp.Slots[0].UTC())
	assert.Equal(t, at(11, 45).UTC(), resp.Slots[1].UTC())
}

func TestRecommendationsDayOff(t *testing.T) {
	store := availability.NewInMemoryStore()
	router, tenant := newTestServer(store, &stubVisits{})

	require.NoError(t, store.UpsertDay(context.Background(), &availability.Day{
		ID: uuid.New(), TenantID: tenant.ID, EmployeeName: "Magda",
		Day: at(0, 0), IsDayOff: true,
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/slots/recommendations?day=2026-09-14&employee_name=Magda", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RecommendationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Slots)
}

func TestRecommendationsValidation(t *testing.T) {
	router, _ := newTestServer(availability.NewInMemoryStore(), &stubVisits{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/slots/recommendations?day=2026-09-14", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/slots/recommendations?day=nope&employee_name=Magda", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/slots/recommendations?day=2026-09-14&employee_name=Magda&limit=1000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
