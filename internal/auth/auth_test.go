package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-agency/internal/common"
)

const testSecret = "test-secret"

func signToken(t *testing.T, alg jwa.SignatureAlgorithm, key any, build func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	now := time.Now()
	builder := jwt.NewBuilder().
		Issuer("agency").
		Audience([]string{"agency-api"}).
		Subject("user-1").
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(time.Minute))
	if build != nil {
		builder = build(builder)
	}
	tok, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, key))
	require.NoError(t, err)
	return string(signed)
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: "agency", Audience: "agency-api", ClockSkew: time.Second})
	require.NoError(t, err)
	return v
}

func TestVerifierTenantClaim(t *testing.T) {
	v := newTestVerifier(t)
	token := signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
		return b.Claim(TenantClaim, "owner-9")
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "owner-9", claims.TenantID)
}

func TestVerifierOwnerFallsBackToSubject(t *testing.T) {
	v := newTestVerifier(t)
	claims, err := v.Verify(signToken(t, jwa.HS256, []byte(testSecret), nil))
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.TenantID)
}

func TestVerifierRejects(t *testing.T) {
	v := newTestVerifier(t)

	cases := map[string]string{
		"wrong secret": signToken(t, jwa.HS256, []byte("other"), nil),
		"wrong issuer": signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
			return b.Issuer("someone-else")
		}),
		"expired": signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
			return b.IssuedAt(time.Now().Add(-2 * time.Hour)).NotBefore(time.Now().Add(-2 * time.Hour)).Expiration(time.Now().Add(-time.Minute))
		}),
		"wrong algorithm": signToken(t, jwa.HS512, []byte(testSecret), nil),
		"garbage":         "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
		})
	}
}

func TestRequireAuthSetsContext(t *testing.T) {
	mw := Middleware{Verifier: newTestVerifier(t), AccessCookie: "access_token"}
	var gotUser, gotTenant string
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		gotTenant, _ = common.TenantID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token := signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
		return b.Claim(TenantClaim, "owner-9")
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "user-1", gotUser)
	require.Equal(t, "owner-9", gotTenant)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRequireAuthMissingToken(t *testing.T) {
	mw := Middleware{Verifier: newTestVerifier(t)}
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "UNAUTHORIZED")
}

func TestRequireAuthExpiredToken(t *testing.T) {
	mw := Middleware{Verifier: newTestVerifier(t)}
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	token := signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
		past := time.Now().Add(-2 * time.Hour)
		return b.IssuedAt(past).NotBefore(past).Expiration(time.Now().Add(-time.Minute))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "TOKEN_EXPIRED")
}
