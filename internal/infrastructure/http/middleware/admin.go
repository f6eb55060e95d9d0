package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
)

const AdminSecretHeader = "X-Erasure-Admin-Secret"

// RequireAdminSecret returns a middleware that requires X-Erasure-Admin-Secret to match the given secret.
// If secret is empty, all requests are rejected with 401. With a non-nil lockout, clients (by remote
// address, so mount after RealIP) that keep failing get 429 until the cooldown ends.
func RequireAdminSecret(secret string, lockout ports.LockoutStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "admin API not configured (ADMIN_SECRET)")
				return
			}
			client := r.RemoteAddr
			if lockout != nil {
				if locked, retry := lockout.IsLocked(r.Context(), client); locked {
					w.Header().Set("Retry-After", strconv.Itoa(retry))
					writeErr(w, http.StatusTooManyRequests, "rate_limited", "too many failed attempts")
					return
				}
			}
			got := r.Header.Get(AdminSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				if lockout != nil {
					lockout.RecordFailure(r.Context(), client)
				}
				writeErr(w, http.StatusUnauthorized, "unauthorized", "invalid or missing admin secret")
				return
			}
			if lockout != nil {
				lockout.RecordSuccess(r.Context(), client)
			}
			next.ServeHTTP(w, r)
		})
	}
}
