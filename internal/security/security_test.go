package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func echo(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(body)
	})
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit{Max: 10}.Middleware(echo(t))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, `{"a":1}`, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 11))))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	req.ContentLength = 100
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestCSRF(t *testing.T) {
	handler := CSRF{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name  string
		setup func(r *http.Request)
		code  int
	}{
		{name: "missing", setup: func(*http.Request) {}, code: http.StatusForbidden},
		{name: "mismatch", setup: func(r *http.Request) {
			r.Header.Set("X-CSRF-Token", "a")
			r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "b"})
		}, code: http.StatusForbidden},
		{name: "match", setup: func(r *http.Request) {
			r.Header.Set("X-CSRF-Token", "token")
			r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token"})
		}, code: http.StatusNoContent},
		{name: "bearer", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer abc")
		}, code: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.code, rr.Code)
		})
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHeaders(t *testing.T) {
	handler := Headers{HSTSMaxAge: 31536000, HSTSIncludeSubdomains: true}.Middleware(echo(t))

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}
