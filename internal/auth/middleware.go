package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-agency/internal/common"
	"github.com/noah-isme/backend-agency/internal/obs"
)

// TokenVerifier resolves the claims of a bearer token.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// Middleware authenticates owner requests from the Authorization header or,
// for the dashboard, from the access cookie.
type Middleware struct {
	Verifier     TokenVerifier
	AccessCookie string
}

// RequireAuth answers 401 unless the request carries a valid token. On success
// the caller's user and tenant ids are placed on the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.token(r)
		if token == "" || m.Verifier == nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		claims, err := m.Verifier.Verify(token)
		if err != nil {
			code, msg := "UNAUTHORIZED", "missing or invalid token"
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.HTTPStatus == http.StatusUnauthorized {
				code, msg = appErr.Code, appErr.Message
			}
			common.JSONError(w, http.StatusUnauthorized, code, msg, nil)
			return
		}

		ctx := r.Context()
		obs.SetActor(ctx, claims.UserID, claims.TenantID)
		ctx = common.WithTenantID(common.WithUserID(ctx, claims.UserID), claims.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) token(r *http.Request) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(value)
	}
	if m.AccessCookie == "" {
		return ""
	}
	cookie, err := r.Cookie(m.AccessCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
