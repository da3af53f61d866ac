package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieloza/salonos/internal/reservations"
	"github.com/danieloza/salonos/internal/tenancy"
	"github.com/danieloza/salonos/internal/visits"
	"github.com/danieloza/salonos/pkg/logging"
)

type recordingEnqueuer struct {
	jobs []string
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, _ uuid.UUID, jobType string, _ map[string]any) error {
	e.jobs = append(e.jobs, jobType)
	return nil
}

type convertFixture struct {
	*fixture
	router   *chi.Mux
	enqueuer *recordingEnqueuer
}

func newConvertFixture(t *testing.T) *convertFixture {
	t.Helper()
	f := newFixture(t)
	enqueuer := &recordingEnqueuer{}
	f.coordinator = NewCoordinator(NewInMemoryStore(f.reservations, f.visits).WithJobs(enqueuer), nil)
	auditor := NewAuditor(NewInMemoryAuditStore(f.reservations, f.visits), nil)
	handler := NewHandler(f.coordinator, auditor, nil, logging.Default())
	tenant := &tenancy.Tenant{ID: f.tenantID, Slug: "studio-luna", Name: "Studio Luna"}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenancy.WithTenant(req.Context(), tenant)
			ctx = tenancy.WithActor(ctx, "staff@salon.pl")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/api/reservations/{reservationID}/convert", handler.Convert)
	r.Get("/api/integrity/conversions", handler.Integrity)
	return &convertFixture{fixture: f, router: r, enqueuer: enqueuer}
}

// End to end: submit, convert with employee Magda at price 260, then audit
// reports zero issues.
func TestConvertEndToEnd(t *testing.T) {
	f := newConvertFixture(t)
	reservation := &reservations.Reservation{
		ID:          uuid.New(),
		TenantID:    f.tenantID,
		RequestedDT: time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour).Add(14 * time.Hour),
		ClientName:  "Anna Kowalska",
		Phone:       "+48555111222",
		ServiceName: "manicure",
		Status:      reservations.StatusNew,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := f.reservations.Create(context.Background(), reservation)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+reservation.ID.String()+"/convert",
		bytes.NewBufferString(`{"employee_name": "Magda", "price": 260}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var visit visits.Visit
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&visit))
	require.NotNil(t, visit.SourceReservationID)
	assert.Equal(t, reservation.ID, *visit.SourceReservationID)

	updated, err := f.reservations.GetByID(context.Background(), f.tenantID, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, reservations.StatusConverted, updated.Status)

	assert.Equal(t, []string{"calendar.sync"}, f.enqueuer.jobs)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/integrity/conversions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 0, report.IssuesCount)
}

func TestConvertTwiceReturnsSameVisitID(t *testing.T) {
	f := newConvertFixture(t)
	reservation := f.addReservation(t)

	body := `{"employee_name": "Magda", "price": 260}`
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+reservation.ID.String()+"/convert", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var first visits.Visit
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&first))

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+reservation.ID.String()+"/convert", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var second visits.Visit
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.visits.SourceRefs(f.tenantID), 1)
	assert.Len(t, f.enqueuer.jobs, 1, "replay must not enqueue a second sync")
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, uuid.UUID, string, map[string]any) error {
	return errors.New("queue unavailable")
}

// A conversion that cannot schedule its calendar sync must fail loudly, not
// commit and drop the side effect.
func TestConvertFailsWhenSyncCannotBeQueued(t *testing.T) {
	f := newFixture(t)
	f.coordinator = NewCoordinator(NewInMemoryStore(f.reservations, f.visits).WithJobs(failingEnqueuer{}), nil)
	auditor := NewAuditor(NewInMemoryAuditStore(f.reservations, f.visits), nil)
	handler := NewHandler(f.coordinator, auditor, nil, logging.Default())
	tenant := &tenancy.Tenant{ID: f.tenantID, Slug: "studio-luna", Name: "Studio Luna"}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenancy.WithTenant(req.Context(), tenant)
			ctx = tenancy.WithActor(ctx, "staff@salon.pl")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/api/reservations/{reservationID}/convert", handler.Convert)

	reservation := f.addReservation(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+reservation.ID.String()+"/convert",
		bytes.NewBufferString(`{"employee_name": "Magda", "price": 260}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConvertMismatchedReplayReturnsConflict(t *testing.T) {
	f := newConvertFixture(t)
	reservation := f.addReservation(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+reservation.ID.String()+"/convert",
		bytes.NewBufferString(`{"employee_name": "Magda", "price": 260}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var first visits.Visit
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&first))

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+reservation.ID.String()+"/convert",
		bytes.NewBufferString(`{"employee_name": "Kasia", "price": 260}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	// The body names the visit that actually got booked.
	var resp struct {
		Error string       `json:"error"`
		Visit visits.Visit `json:"visit"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.Error, "already converted")
	assert.Equal(t, first.ID, resp.Visit.ID)
	assert.Equal(t, "Magda", resp.Visit.EmployeeName)
}

func TestConvertEndpointErrors(t *testing.T) {
	f := newConvertFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+uuid.NewString()+"/convert",
		bytes.NewBufferString(`{"employee_name": "Magda", "price": 260}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	declined := f.addReservation(t)
	_, err := f.reservations.Transition(context.Background(), f.tenantID, declined.ID, reservations.StatusDeclined, "staff@salon.pl", "")
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/reservations/"+declined.ID.String()+"/convert",
		bytes.NewBufferString(`{"employee_name": "Magda", "price": 260}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
