package clients

import (
	"context"

	"github.com/google/uuid"
)

// Recorder bumps a client's visit count when a reservation converts.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// RecordVisit upserts the client record and increments its visit count.
func (r *Recorder) RecordVisit(ctx context.Context, tenantID uuid.UUID, name, phone string) error {
	client, err := r.store.GetOrCreate(ctx, tenantID, name, phone)
	if err != nil {
		return err
	}
	return r.store.IncrementVisits(ctx, tenantID, client.ID)
}
