package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/knowledgeshare/identity/internal/auth"
	"github.com/knowledgeshare/identity/internal/obs"
)

// errorBody is the stable failure envelope: a machine-readable code and a
// human-readable message. Security-sensitive branches share one message
// regardless of the underlying condition.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// CorrelationID is set only for unclassified internal failures so an
	// operator can find the matching log line.
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func badRequest(w http.ResponseWriter, message string) {
	writeErrorCode(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeErrorCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeServiceError translates the auth error taxonomy into HTTP status
// codes and stable envelope codes. Raw storage errors never reach here with
// their detail intact; anything unclassified becomes a correlated 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		badRequest(w, "invalid request")
	case errors.Is(err, auth.ErrEmailExists):
		writeErrorCode(w, http.StatusConflict, "EMAIL_EXISTS", "email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeErrorCode(w, http.StatusForbidden, "ACCOUNT_DISABLED", "account is disabled")
	case errors.Is(err, auth.ErrInvalidToken):
		writeErrorCode(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid refresh token")
	case errors.Is(err, auth.ErrTokenExpired):
		writeErrorCode(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "refresh token expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeErrorCode(w, http.StatusUnauthorized, "TOKEN_REVOKED", "refresh token revoked")
	case errors.Is(err, auth.ErrInvalidOrExpiredToken):
		writeErrorCode(w, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired token")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeErrorCode(w, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
	case errors.Is(err, auth.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.Is(err, auth.ErrUpstreamUnavailable):
		writeErrorCode(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "temporarily unavailable, retry later")
	default:
		cid := uuid.NewString()
		obs.Logger().ErrorContext(r.Context(), "internal error",
			"correlation_id", cid, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:          "INTERNAL",
			Message:       "internal error",
			CorrelationID: cid,
		})
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
