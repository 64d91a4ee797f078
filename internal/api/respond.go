package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/TobyX424242/ZeroShare/internal/share"
)

// Error codes carried in JSON error bodies.
const (
	codeInvalidID         = "INVALID_ID"
	codeNotFound          = "NOT_FOUND"
	codeExpired           = "EXPIRED"
	codeViewLimitExceeded = "VIEW_LIMIT_EXCEEDED"
	codePasswordRequired  = "PASSWORD_REQUIRED"
	codeInvalidPassword   = "INVALID_PASSWORD"
	codeValidation        = "VALIDATION"
	codeTooLarge          = "PAYLOAD_TOO_LARGE"
	codeUnauthorized      = "UNAUTHORIZED"
	codeInternal          = "INTERNAL"
)

// isoMillis matches the ISO-8601 form browsers produce for Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, errorBody{Error: msg, Code: code})
}

// fail maps an engine error onto a status and code. Anything unrecognised is
// logged and answered with fallback so store details never reach the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *share.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, codeValidation, verr.Message)
	case errors.Is(err, share.ErrInvalidID):
		respondError(w, http.StatusBadRequest, codeInvalidID, "Invalid share identifier")
	case errors.Is(err, share.ErrNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "Share not found or expired")
	case errors.Is(err, share.ErrStorageInconsistency):
		respondError(w, http.StatusNotFound, codeNotFound, "File not found")
	case errors.Is(err, share.ErrExpired):
		respondError(w, http.StatusGone, codeExpired, "Share has expired")
	case errors.Is(err, share.ErrViewLimitExceeded):
		respondError(w, http.StatusGone, codeViewLimitExceeded, "View limit exceeded")
	case errors.Is(err, share.ErrPasswordRequired):
		respondError(w, http.StatusUnauthorized, codePasswordRequired, "Password required")
	case errors.Is(err, share.ErrInvalidPassword):
		respondError(w, http.StatusForbidden, codeInvalidPassword, "Invalid password")
	default:
		s.log.Errorw("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, codeInternal, fallback)
	}
}
