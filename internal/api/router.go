// Package api wires the HTTP surface of the dashboard backend.
package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/export"
	"github.com/rpattn/opsdash/internal/httpx"
	"github.com/rpattn/opsdash/internal/ingestion"
	"github.com/rpattn/opsdash/internal/middleware"
	"github.com/rpattn/opsdash/internal/schema"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/cors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures the router.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
}

type handlers struct {
	service  *ingestion.Service
	registry *schema.Registry
	exports  *export.Handler
	logger   *slog.Logger
}

// NewRouter returns the HTTP handler serving /api.
func NewRouter(service *ingestion.Service, registry *schema.Registry, exporter *export.Service, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{
		service:  service,
		registry: registry,
		exports:  export.NewHTTPHandler(exporter, logger.With("component", "export")),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	r.Use(corsHandler.Handler)

	api := chi.NewRouter()
	api.Get("/health", h.health)
	api.Method(http.MethodPost, "/imports", ingestion.NewHTTPHandler(service, opts.MaxUploadBytes))
	api.Get("/history", h.history)
	api.Get("/logs", h.ingestionLogs)
	api.Get("/stats", h.stats)
	api.Post("/refresh", h.refresh)

	api.Route("/tables/{table}", func(t chi.Router) {
		t.Get("/rows", h.readPage)
		t.Get("/hot", h.hotRows)
		t.Get("/export", h.exportTable)
		t.Delete("/rows", h.deleteRows)
		t.Delete("/", h.clearTable)
	})

	api.Get("/schemas", h.listSchemas)
	api.Put("/schemas/{table}", h.updateSchema)

	api.Get("/directory", h.getDirectory)
	api.Put("/directory", h.putDirectory)
	api.Post("/directory/publish", h.publishDirectory)

	r.Mount("/api", api)
	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, history)
}

func (h *handlers) ingestionLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	table := q.Get("table")
	if t, err := domain.ParseTableType(table); err == nil {
		table = t.FactTable()
	}
	entries, err := h.service.IngestionLogs(r.Context(), table, q.Get("file"), queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.IngestionLogEntry{}
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()
	if snap == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"stats": map[string]domain.TableStats{}})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"anchor":      snap.Anchor.Format(domain.DateLayout),
		"windowStart": snap.WindowStart.Format(domain.DateLayout),
		"windowEnd":   snap.WindowEnd.Format(domain.DateLayout),
		"refreshedAt": snap.RefreshedAt,
		"stats":       snap.Stats,
	})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.RefreshMetadata(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"anchor":      snap.Anchor.Format(domain.DateLayout),
		"windowStart": snap.WindowStart.Format(domain.DateLayout),
		"stats":       snap.Stats,
	})
}

// tableParam accepts a logical table type or a persisted table name.
func tableParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "table")
	if t, err := domain.ParseTableType(raw); err == nil {
		return t.FactTable(), nil
	}
	switch raw {
	case domain.DimShops, domain.DimSKUs:
		return raw, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownTable, raw)
}

func (h *handlers) readPage(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	limit := queryInt(r, "limit", 200)
	offset := queryInt(r, "offset", 0)

	rows, total, err := h.service.ReadPage(r.Context(), table, limit, offset)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"rows":   rows,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *handlers) hotRows(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	rows := h.service.Snapshot().TableRows(table)
	if rows == nil {
		rows = []domain.CanonicalRow{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (h *handlers) exportTable(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	h.exports.Download(w, r, table)
}

type deleteRowsRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *handlers) deleteRows(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	var req deleteRowsRequest
	if err := decodeBody(r, &req); err != nil || len(req.IDs) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "expected {\"ids\": [..]}", nil)
		return
	}
	deleted, err := h.service.DeleteRows(r.Context(), table, req.IDs)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *handlers) clearTable(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	deleted, err := h.service.ClearTable(r.Context(), table)
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *handlers) listSchemas(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.registry.All())
}

func (h *handlers) updateSchema(w http.ResponseWriter, r *http.Request) {
	table, err := domain.ParseTableType(chi.URLParam(r, "table"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusNotFound, "unknown_table", err.Error(), nil)
		return
	}
	var s domain.Schema
	if err := decodeBody(r, &s); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	s.Table = table
	if err := h.registry.Update(r.Context(), s); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_schema", err.Error(), nil)
		return
	}
	updated, _ := h.registry.Get(table)
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *handlers) getDirectory(w http.ResponseWriter, r *http.Request) {
	dir, err := h.service.Directory(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dir)
}

func (h *handlers) putDirectory(w http.ResponseWriter, r *http.Request) {
	var dir domain.Directory
	if err := decodeBody(r, &dir); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}
	if err := h.service.SaveDirectory(r.Context(), dir); err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dir)
}

func (h *handlers) publishDirectory(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.PublishDirectory(r.Context())
	if err != nil {
		httpx.WriteDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
