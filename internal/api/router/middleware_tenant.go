package router

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/danieloza/salonos/internal/tenancy"
)

const (
	tenantHeader = "X-Tenant-Slug"
	actorHeader  = "X-Actor-Email"
)

// requireTenant resolves the X-Tenant-Slug header into a tenant for the staff
// API, provisioning an isolated partition on first use. The actor email rides
// along when present; handlers that mutate state reject requests without it.
func requireTenant(resolver *tenancy.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := strings.TrimSpace(r.Header.Get(tenantHeader))
			if slug == "" {
				http.Error(w, "missing "+tenantHeader, http.StatusBadRequest)
				return
			}
			tenant, err := resolver.ResolveOrCreate(r.Context(), slug, "")
			if err != nil {
				if errors.Is(err, tenancy.ErrInvalidSlug) {
					http.Error(w, "invalid tenant slug", http.StatusBadRequest)
					return
				}
				http.Error(w, "tenant lookup failed", http.StatusInternalServerError)
				return
			}

			ctx := tenancy.WithTenant(r.Context(), tenant)
			if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
				ctx = tenancy.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tenantFromSlug resolves the {tenantSlug} URL segment for public routes,
// which never create tenants.
func tenantFromSlug(resolver *tenancy.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := resolver.Resolve(r.Context(), chi.URLParam(r, "tenantSlug"))
			if err != nil {
				if errors.Is(err, tenancy.ErrTenantNotFound) || errors.Is(err, tenancy.ErrInvalidSlug) {
					http.Error(w, "unknown tenant", http.StatusNotFound)
					return
				}
				http.Error(w, "tenant lookup failed", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.WithTenant(r.Context(), tenant)))
		})
	}
}
