package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// AuthValidator verifies the bearer token and sets the user in context (see UserIDFromContext).
type AuthValidator struct {
	verifier ports.TokenVerifier
}

func NewAuthValidator(verifier ports.TokenVerifier) *AuthValidator {
	return &AuthValidator{verifier: verifier}
}

func (m *AuthValidator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			writeErr(w, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization")
			return
		}
		uid, err := m.verifier.Verify(r.Context(), strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "invalid_token", "invalid token")
			return
		}
		userID, err := domain.ParseUserID(uid)
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "invalid_token", "token has no usable subject")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func writeErr(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": errCode})
}
