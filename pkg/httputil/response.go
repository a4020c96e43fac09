package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/logger"
)

// Response is the standard JSON response envelope.
type Response struct {
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a success envelope with an optional human-readable message.
func WriteData(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{Message: message, Data: data})
}

// WriteError maps err to a status code and error envelope. Errors that are
// not AppErrors are classified by sentinel. Server-side failures are logged
// with the request-scoped logger when one is present, otherwise fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	body := &ErrorResponse{
		Code:      "INTERNAL_ERROR",
		Message:   "an internal error occurred",
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}

	kind := apperrors.KindOf(err)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && kind != apperrors.KindInternal {
		body.Code = appErr.Code
		body.Message = appErr.Message
		body.Fields = appErr.Fields
	} else {
		switch kind {
		case apperrors.KindNotFound:
			body.Code, body.Message = "NOT_FOUND", "resource not found"
		case apperrors.KindConflict:
			body.Code, body.Message = "CONFLICT", "resource already exists"
		case apperrors.KindInvalidInput:
			body.Code, body.Message = "INVALID_INPUT", err.Error()
		}
	}

	status := kind.Status()
	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("kind", kind.String()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Error: body})
}

// ParseID parses a positive integer path parameter. A value that cannot be
// an id of resource yields a 404 response and false.
func ParseID(w http.ResponseWriter, r *http.Request, resource, param string) (int64, bool) {
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, r, apperrors.NotFound(resource, param), nil)
		return 0, false
	}
	return id, true
}
