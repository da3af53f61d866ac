package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	tenantKey ctxKey = "salonos.tenant"
	actorKey  ctxKey = "salonos.actor"
)

// WithTenant stores the resolved tenant in context.
func WithTenant(ctx context.Context, tenant *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// FromContext extracts the resolved tenant if present.
func FromContext(ctx context.Context) (*Tenant, bool) {
	tenant, ok := ctx.Value(tenantKey).(*Tenant)
	return tenant, ok && tenant != nil
}

// TenantID is a convenience accessor for the resolved tenant id.
func TenantID(ctx context.Context) (uuid.UUID, bool) {
	tenant, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return tenant.ID, true
}

// WithActor stores the acting user's email in context.
func WithActor(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, actorKey, email)
}

// ActorFromContext extracts the acting user's email if present.
func ActorFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(actorKey).(string)
	return email, ok && email != ""
}
