package export

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rpattn/opsdash/internal/httpx"
)

// Handler serves table downloads.
type Handler struct {
	service *Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewHTTPHandler wraps the export service.
func NewHTTPHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, logger: logger, now: time.Now}
}

// Download streams table in the format named by the "format" query parameter.
// Once the body has started an error can only be logged.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request, table string) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_format", err.Error(), nil)
		return
	}
	if _, err := h.service.columns(table); err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}

	filename := FileName(table, format, h.now())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.WriteHeader(http.StatusOK)

	if _, err := h.service.Export(r.Context(), w, table, format); err != nil {
		h.logger.Error("export aborted", "table", table, "format", format, "error", err)
	}
}
