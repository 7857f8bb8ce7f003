package middleware

import (
	"context"
	"net/http"
	"unicode"

	"ai_selector/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// TenantIDKey is the context key for the calling tenant
	TenantIDKey ContextKey = "tenantID"

	// TenantHeader carries the tenant identifier set by the enclosing application.
	TenantHeader = "X-Tenant-ID"

	maxTenantIDLength = 128
)

// TenantMiddleware copies the tenant header into the request context. The
// header is optional; requests without it are served without per-tenant
// budget and usage lookups.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantHeader)
		if tenantID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !validTenantID(tenantID) {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid "+TenantHeader+" header")
			return
		}

		ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validTenantID(id string) bool {
	if len(id) > maxTenantIDLength {
		return false
	}
	for _, c := range id {
		if unicode.IsControl(c) || unicode.IsSpace(c) {
			return false
		}
	}
	return true
}

// GetTenantID returns the tenant stored by TenantMiddleware, or "".
func GetTenantID(ctx context.Context) string {
	id, _ := ctx.Value(TenantIDKey).(string)
	return id
}
