package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"costbook/internal/core"
	"costbook/internal/log"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, r, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: "body_too_large"})
		case errors.Is(err, core.ErrInvalidDate):
			writeError(w, r, err)
		default:
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Code: "bad_request"})
		}
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to write JSON response", log.FieldError, err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateCode):
		return http.StatusConflict
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"error", "code"}. Internal errors are logged and
// their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: core.ErrorCode(err)}
	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err,
			log.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
		resp.Error = "internal server error"
	}
	writeJSON(w, r, status, resp)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
