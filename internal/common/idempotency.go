package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client-chosen replay key.
const IdempotencyHeader = "Idempotency-Key"

// Idem rejects a second write carrying the same Idempotency-Key within TTL.
// Keys are scoped to the tenant and the request line, so two tenants or two
// endpoints reusing a key never collide. A request that ends in a 5xx releases
// its key so the client can retry.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func idemKey(tenantID string, r *http.Request, key string) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + r.Method + " " + r.URL.Path + "|" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

type idemStatus struct {
	http.ResponseWriter
	status int
}

func (s *idemStatus) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *idemStatus) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		tenantID, _ := TenantID(ctx)
		key := idemKey(tenantID, r, header)
		ok, err := i.R.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency store unavailable", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}

		rec := &idemStatus{ResponseWriter: w}
		defer func() {
			if rec.status >= http.StatusInternalServerError {
				_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}
