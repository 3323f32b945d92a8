package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const idempotencyHeader = "Idempotency-Key"

// Idem rejects a repeated Idempotency-Key from the same caller while the
// first request's claim is alive. A 5xx response drops the claim so the
// client can retry with the same key.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func (i Idem) claimKey(r *http.Request, key string) string {
	caller, _ := UserID(r.Context())
	sum := sha256.Sum256([]byte(caller + "\x00" + r.URL.Path + "\x00" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (i Idem) ttl() time.Duration {
	if i.TTL > 0 {
		return i.TTL
	}
	return 24 * time.Hour
}

// Middleware applies the claim to write endpoints. Requests without the
// header pass through untouched.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if key == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		claim := i.claimKey(r, key)
		fresh, err := i.R.SetNX(r.Context(), claim, time.Now().UTC().Format(time.RFC3339), i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "could not record idempotency key", nil)
			return
		}
		if !fresh {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "a request with this Idempotency-Key was already received", nil)
			return
		}
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.code >= http.StatusInternalServerError {
			_ = i.R.Del(context.WithoutCancel(r.Context()), claim).Err()
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}
