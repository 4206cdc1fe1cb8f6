// Package tenant exposes the agency (root owner) scope of an authenticated request.
package tenant

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-agency/internal/common"
)

// FromContext returns the tenant identifier resolved by the auth middleware.
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	raw, ok := common.TenantID(ctx)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Require rejects requests whose context carries no valid tenant identifier.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "TENANT_REQUIRED", "tenant scope is required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
