package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dukerupert/ledgerline/internal/domain"
)

// DecodeJSON reads a JSON request body into v. Unknown fields, trailing
// data and oversized bodies are rejected as invalid input.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.Errorf(domain.EINVALID, "", "Request body too large")
		case errors.Is(err, io.EOF):
			return domain.Errorf(domain.EINVALID, "", "Request body is empty")
		default:
			return domain.Errorf(domain.EINVALID, "", "Invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return domain.Errorf(domain.EINVALID, "", "Request body must contain a single JSON object")
	}
	return nil
}
