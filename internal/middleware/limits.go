package middleware

import (
	"net/http"

	"github.com/dukerupert/ledgerline/internal/domain"
)

// Common size limits
const (
	KB = 1024
	MB = 1024 * KB

	// DefaultMaxBodySize covers every JSON body the API accepts.
	DefaultMaxBodySize = 1 * MB
)

// MaxBodySize rejects bodies with a declared length over maxBytes and caps
// the rest with http.MaxBytesReader, so a lying Content-Length still stops
// at the limit when the handler decodes.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondWithError(w, r, domain.Errorf(domain.EINVALID, "", "Request body too large"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
