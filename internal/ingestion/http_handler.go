package ingestion

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/httpx"
)

// DefaultMaxUploadBytes bounds the multipart body.
const DefaultMaxUploadBytes = 32 << 20

// Handler exposes imports as an HTTP endpoint.
type Handler struct {
	service  *Service
	maxBytes int64
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service, maxBytes int64) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Handler{service: service, maxBytes: maxBytes}
}

type mismatchDetails struct {
	Detected domain.TableType `json:"detected"`
	Selected domain.TableType `json:"selected"`
	Score    float64          `json:"score"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_form", fmt.Sprintf("invalid form data: %v", err), nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "file_required", fmt.Sprintf("file required: %v", err), nil)
		return
	}
	defer file.Close()

	req := ImportRequest{
		FileName: header.Filename,
		ShopID:   strings.TrimSpace(r.FormValue("shopId")),
		Sheet:    strings.TrimSpace(r.FormValue("sheet")),
	}

	if raw := strings.TrimSpace(r.FormValue("table")); raw != "" {
		table, err := domain.ParseTableType(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_table", err.Error(), nil)
			return
		}
		req.Table = table
	}

	switch strings.ToLower(strings.TrimSpace(r.FormValue("redirect"))) {
	case "accept":
		req.ConfirmRedirect = func(domain.TableType, domain.TableType, float64) bool { return true }
	case "reject":
		req.IgnoreDetection = true
	}

	req.Data, err = io.ReadAll(file)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "read_failed", fmt.Sprintf("failed to read file: %v", err), nil)
		return
	}

	result, err := h.service.RunImport(r.Context(), req)
	if err != nil {
		var mismatch *TableMismatchError
		if errors.As(err, &mismatch) {
			httpx.WriteError(w, r, http.StatusConflict, "table_mismatch", err.Error(), mismatchDetails{
				Detected: mismatch.Detected,
				Selected: mismatch.Selected,
				Score:    mismatch.Score,
			})
			return
		}
		if errors.Is(err, ErrNoTable) {
			httpx.WriteError(w, r, http.StatusUnprocessableEntity, "table_required", err.Error(), nil)
			return
		}
		status, code, details := httpx.Classify(err)
		httpx.WriteJSON(w, status, map[string]any{
			"error":  httpx.ErrorBody{Code: code, Message: err.Error(), Details: details},
			"result": result,
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}
