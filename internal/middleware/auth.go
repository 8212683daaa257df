package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

// BearerToken guards routes with a static shared secret sent as
// "Authorization: Bearer <token>". With an empty secret the routes are
// disabled and answer 404, so an unconfigured deployment exposes nothing.
func BearerToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				respondNotFound(w, r)
				return
			}

			token, ok := bearer(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ledgerline"`)
				respondUnauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
