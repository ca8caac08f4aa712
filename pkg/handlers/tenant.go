package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/buddy-hq/buddy-engine/pkg/database"
)

// TenantHeader carries the caller's tenant identity. The service runs behind
// an authenticating gateway that validates the caller and stamps this header;
// the engine trusts it and enforces isolation at the database layer via RLS.
const TenantHeader = "X-Tenant-ID"

// TenantMiddleware is a function that wraps a handler with tenant context.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

type tenantIDKey struct{}

// GetTenantID retrieves the request's tenant ID from context.
// Returns uuid.Nil and false if not present.
func GetTenantID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(tenantIDKey{}).(uuid.UUID)
	return id, ok
}

// NewTenantScopeMiddleware builds the middleware that opens a tenant-scoped
// database connection for the duration of the request. Requests without a
// valid tenant header are rejected before any repository runs.
func NewTenantScopeMiddleware(provider *database.TenantScopeProvider, logger *zap.Logger) TenantMiddleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := uuid.Parse(r.Header.Get(TenantHeader))
			if err != nil {
				if err := ErrorResponse(w, http.StatusUnauthorized, "missing_tenant", "A valid "+TenantHeader+" header is required"); err != nil {
					logger.Error("Failed to write error response", zap.Error(err))
				}
				return
			}

			ctx, cleanup, err := provider.WithTenantScope(r.Context(), tenantID)
			if err != nil {
				logger.Error("Failed to open tenant scope",
					zap.String("tenant_id", tenantID.String()),
					zap.Error(err))
				if err := ErrorResponse(w, http.StatusServiceUnavailable, "tenant_scope_failed", "Could not acquire a database connection"); err != nil {
					logger.Error("Failed to write error response", zap.Error(err))
				}
				return
			}
			defer cleanup()

			ctx = context.WithValue(ctx, tenantIDKey{}, tenantID)
			next(w, r.WithContext(ctx))
		}
	}
}
