package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Beatrizpaiva2025/Mia-Welcome/pkg/utils"
)

// BearerToken rejects requests whose Authorization header does not carry token.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := extractBearer(r)
			if !ok {
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(bearer), []byte(token)) != 1 {
				utils.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}
