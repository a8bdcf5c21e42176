// Package handler contains the JSON HTTP handlers of the coaching API.
//
// Handlers decode requests, call services and map domain errors to HTTP
// responses through ErrorResponse. Authentication and quota guards are
// middleware passed in at route registration.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coachly/coachly/internal/domain"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	Code            string `json:"code,omitempty"`
	UpgradeRequired bool   `json:"upgradeRequired,omitempty"`
}

// codeStatus maps domain error codes to HTTP statuses. Unknown codes are
// treated as internal.
var codeStatus = map[string]int{
	domain.EINVALID:      http.StatusBadRequest,
	domain.EUNAUTHORIZED: http.StatusUnauthorized,
	domain.EFORBIDDEN:    http.StatusForbidden,
	domain.EQUOTA:        http.StatusForbidden,
	domain.ENOTFOUND:     http.StatusNotFound,
	domain.ETOOLARGE:     http.StatusRequestEntityTooLarge,
	domain.ERATELIMIT:    http.StatusTooManyRequests,
	domain.EINTERNAL:     http.StatusInternalServerError,
	domain.ENOTIMPL:      http.StatusNotImplemented,
}

// ErrorCodeToHTTPStatus maps a domain error code to an HTTP status.
func ErrorCodeToHTTPStatus(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorResponse logs err and writes it as an ErrorBody. Quota errors set
// upgradeRequired. Internal details never reach the body.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	attrs := []any{
		"error", err,
		"code", code,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
	}
	if op := domain.ErrorOp(err); op != "" {
		attrs = append(attrs, "op", op)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("server error", attrs...)
	} else {
		logger.Info("client error", attrs...)
	}

	JSON(w, status, ErrorBody{
		Message:         domain.ErrorMessage(err),
		Code:            code,
		UpgradeRequired: code == domain.EQUOTA,
	})
}

func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required"))
}

func ForbiddenResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.EFORBIDDEN, "", "You don't have permission to access this resource"))
}

// InternalErrorResponse logs err and writes a generic 500.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ErrorResponse(w, r, logger, domain.Internal(err, "", "An unexpected error occurred"))
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
