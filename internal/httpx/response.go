// Package httpx holds the JSON response helpers shared by HTTP handlers.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/rpattn/opsdash/internal/domain"

	chimw "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorEnvelope{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// WriteDomainError maps pipeline errors onto HTTP statuses.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, details := Classify(err)
	WriteError(w, r, status, code, err.Error(), details)
}

// Classify returns the status, error code and optional details for err.
func Classify(err error) (int, string, any) {
	var (
		noData   *domain.NoValidDataError
		writeErr *domain.WriteError
		sheetErr *domain.MissingWorksheetError
	)
	switch {
	case errors.As(err, &writeErr):
		details := map[string]any{"offset": writeErr.Offset, "hint": writeErr.Hint}
		switch writeErr.Kind {
		case domain.WriteErrorPermission:
			return http.StatusForbidden, string(writeErr.Kind), details
		case domain.WriteErrorSchema:
			return http.StatusConflict, string(writeErr.Kind), details
		case domain.WriteErrorConnection:
			return http.StatusServiceUnavailable, string(writeErr.Kind), details
		case domain.WriteErrorExhausted:
			return http.StatusBadGateway, string(writeErr.Kind), details
		}
		return http.StatusInternalServerError, "write_failed", details
	case errors.As(err, &noData):
		return http.StatusUnprocessableEntity, "no_valid_data", noData.Missing
	case errors.As(err, &sheetErr):
		return http.StatusUnprocessableEntity, "missing_worksheet", map[string]string{"sheet": sheetErr.Sheet}
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported_format", nil
	case errors.Is(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity, "extraction_error", nil
	case errors.Is(err, domain.ErrConnectionUnavailable):
		return http.StatusServiceUnavailable, "connection_unavailable", nil
	case errors.Is(err, domain.ErrUnknownTable):
		return http.StatusNotFound, "unknown_table", nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled", nil
	}
	return http.StatusInternalServerError, "internal_error", nil
}
