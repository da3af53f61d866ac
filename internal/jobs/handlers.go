package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/danieloza/salonos/pkg/logging"
)

// CalendarSyncHandler pushes converted visits to an external calendar
// webhook.
type CalendarSyncHandler struct {
	client     *http.Client
	webhookURL string
	logger     *logging.Logger
}

// NewCalendarSyncHandler creates the calendar sync job handler. An empty
// webhook URL turns the handler into a logged no-op.
func NewCalendarSyncHandler(webhookURL string, logger *logging.Logger) *CalendarSyncHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CalendarSyncHandler{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// Handle posts the job payload to the webhook. Non-2xx responses fail the
// job so the runner retries it.
func (h *CalendarSyncHandler) Handle(ctx context.Context, job *Job) error {
	if h.webhookURL == "" {
		h.logger.Info("calendar sync skipped, no webhook configured", "job_id", job.ID)
		return nil
	}

	body := bytes.NewReader(job.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, body)
	if err != nil {
		return fmt.Errorf("calendar sync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", job.TenantID.String())

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar sync: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar sync: webhook returned %d", resp.StatusCode)
	}
	return nil
}

// ReservationExpirer marks stale new reservations expired.
type ReservationExpirer interface {
	ExpireStale(ctx context.Context, tenantID uuid.UUID, cutoff time.Time) (int, error)
}

// ExpireSweepHandler advances reservations nobody touched past their expiry
// age.
type ExpireSweepHandler struct {
	repo   ReservationExpirer
	maxAge time.Duration
	logger *logging.Logger
}

// NewExpireSweepHandler creates the expiry sweep job handler.
func NewExpireSweepHandler(repo ReservationExpirer, maxAge time.Duration, logger *logging.Logger) *ExpireSweepHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxAge <= 0 {
		maxAge = 72 * time.Hour
	}
	return &ExpireSweepHandler{repo: repo, maxAge: maxAge, logger: logger}
}

type expireSweepPayload struct {
	MaxAgeHours int `json:"max_age_hours,omitempty"`
}

// Handle expires stale reservations for the job's tenant.
func (h *ExpireSweepHandler) Handle(ctx context.Context, job *Job) error {
	maxAge := h.maxAge
	var payload expireSweepPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("expire sweep: decode payload: %w", err)
		}
		if payload.MaxAgeHours > 0 {
			maxAge = time.Duration(payload.MaxAgeHours) * time.Hour
		}
	}

	count, err := h.repo.ExpireStale(ctx, job.TenantID, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return fmt.Errorf("expire sweep: %w", err)
	}
	if count > 0 {
		h.logger.Info("expired stale reservations", "tenant_id", job.TenantID, "count", count)
	}
	return nil
}
