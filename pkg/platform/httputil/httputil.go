// Package httputil holds the JSON helpers shared by handlers and middleware:
// response writing, domain error translation, and request decoding.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "ali/pkg/domain-errors"
)

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// statusByCode maps domain error codes to HTTP statuses. Codes not listed
// here fall through to 500.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeValidation:            http.StatusBadRequest,
	dErrors.CodeInvalidMessageContent: http.StatusBadRequest,

	dErrors.CodeAuthentication:     http.StatusUnauthorized,
	dErrors.CodeInvalidCredentials: http.StatusUnauthorized,

	dErrors.CodeInsufficientPermissions: http.StatusForbidden,
	dErrors.CodeAuthorization:           http.StatusForbidden,
	dErrors.CodeSessionAccessDenied:     http.StatusForbidden,
	dErrors.CodeDocumentAccessDenied:    http.StatusForbidden,
	dErrors.CodeUserNotActive:           http.StatusForbidden,
	dErrors.CodeUserNotVerified:         http.StatusForbidden,
	dErrors.CodeMessageEditNotAllowed:   http.StatusForbidden,

	dErrors.CodeUserNotFound:     http.StatusNotFound,
	dErrors.CodeSessionNotFound:  http.StatusNotFound,
	dErrors.CodeMessageNotFound:  http.StatusNotFound,
	dErrors.CodeDocumentNotFound: http.StatusNotFound,
	dErrors.CodeResourceNotFound: http.StatusNotFound,

	dErrors.CodeUserAlreadyExists:     http.StatusConflict,
	dErrors.CodeSessionAlreadyExists:  http.StatusConflict,
	dErrors.CodeMessageAlreadyExists:  http.StatusConflict,
	dErrors.CodeDocumentAlreadyExists: http.StatusConflict,
	dErrors.CodeConflict:              http.StatusConflict,
	dErrors.CodeConcurrency:           http.StatusConflict,
	dErrors.CodeSessionNotActive:      http.StatusConflict,

	dErrors.CodeBusinessRuleViolation:   http.StatusUnprocessableEntity,
	dErrors.CodeUnsupportedDocumentType: http.StatusUnprocessableEntity,
	dErrors.CodeDocumentTooLarge:        http.StatusRequestEntityTooLarge,

	dErrors.CodeRateLimitExceeded: http.StatusTooManyRequests,
	dErrors.CodeQuotaExceeded:     http.StatusTooManyRequests,

	dErrors.CodeMessageProcessingError:  http.StatusBadGateway,
	dErrors.CodeDocumentProcessingError: http.StatusBadGateway,
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a JSON error response. The code
// goes in "error" and the bare message in "error_description"; internal
// errors expose only the code.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	resp := errorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		resp.ErrorDescription = err.Error()
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			resp.ErrorDescription = domainErr.Message()
		}
	}
	WriteJSON(w, status, resp)
}

// Decode parses the request body into T. On failure it writes a 400 response
// and returns ok=false; callers should return immediately.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var payload T
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "failed to decode request body", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		var zero T
		return zero, false
	}
	return payload, true
}
