package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/opsdash/internal/bulkwrite"
	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/hotcache"
	"github.com/rpattn/opsdash/internal/repository"
	"github.com/rpattn/opsdash/internal/schema"
	"github.com/rpattn/opsdash/internal/settings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// ErrNoTable is returned when no target table was selected and none could be detected.
var ErrNoTable = errors.New("target table could not be determined")

// Options are the orchestrator policies.
type Options struct {
	HotWindowDays      int
	DetectionThreshold float64
	HistoryRetention   int
	HeaderScanRows     int
	Writer             bulkwrite.Options
}

func DefaultOptions() Options {
	return Options{
		HotWindowDays:      60,
		DetectionThreshold: schema.DefaultDetectionThreshold,
		HistoryRetention:   200,
		HeaderScanRows:     DefaultHeaderScanRows,
		Writer:             bulkwrite.DefaultOptions(),
	}
}

// Service runs imports and keeps the hot cache current.
type Service struct {
	facts    repository.FactRepository
	logRepo  repository.IngestionLogRepository
	registry *schema.Registry
	store    *settings.Store
	cache    *hotcache.Cache
	writer   *bulkwrite.Writer
	mapper   *Mapper
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	historyMu sync.Mutex
}

// NewService creates a new ingestion service.
func NewService(
	facts repository.FactRepository,
	logRepo repository.IngestionLogRepository,
	registry *schema.Registry,
	store *settings.Store,
	cache *hotcache.Cache,
	opts Options,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	def := DefaultOptions()
	if opts.HotWindowDays <= 0 {
		opts.HotWindowDays = def.HotWindowDays
	}
	if opts.DetectionThreshold <= 0 {
		opts.DetectionThreshold = def.DetectionThreshold
	}
	if opts.HistoryRetention <= 0 {
		opts.HistoryRetention = def.HistoryRetention
	}
	if cache == nil {
		cache = hotcache.New()
	}

	var upserter bulkwrite.Upserter
	if facts != nil {
		upserter = facts
	}

	return &Service{
		facts:    facts,
		logRepo:  logRepo,
		registry: registry,
		store:    store,
		cache:    cache,
		writer:   bulkwrite.NewWriter(upserter, opts.Writer, logger.With("component", "bulkwrite")),
		mapper:   NewMapper(logger.With("component", "mapper")),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// RedirectFunc is asked whether an import should move to the detected table.
type RedirectFunc func(detected, selected domain.TableType, score float64) bool

// ImportRequest describes one upload.
type ImportRequest struct {
	FileName string
	Data     []byte
	// Table is the table selected by the user; empty means use detection.
	Table  domain.TableType
	ShopID string
	Sheet  string

	// ConfirmRedirect decides detection mismatches. Without it a mismatch
	// fails with *TableMismatchError unless IgnoreDetection is set.
	ConfirmRedirect RedirectFunc
	IgnoreDetection bool

	Progress bulkwrite.ProgressFunc
}

// ImportResult reports what an import did, including on failure.
type ImportResult struct {
	Table       domain.TableType           `json:"table"`
	Detected    domain.TableType           `json:"detected,omitempty"`
	Score       float64                    `json:"score"`
	Redirected  bool                       `json:"redirected"`
	Sheet       string                     `json:"sheet"`
	TotalRows   int                        `json:"totalRows"`
	ValidRows   int                        `json:"validRows"`
	Written     int                        `json:"written"`
	Skipped     int                        `json:"skipped"`
	SkippedRows []SkippedRow               `json:"skippedRows,omitempty"`
	Missing     []domain.FieldCount        `json:"missing,omitempty"`
	History     domain.UploadHistoryRecord `json:"history"`
}

// TableMismatchError reports a file that looks like another table than the one selected.
type TableMismatchError struct {
	Selected domain.TableType
	Detected domain.TableType
	Score    float64
}

func (e *TableMismatchError) Error() string {
	return fmt.Sprintf("file looks like %s (score %.2f) but %s was selected", e.Detected, e.Score, e.Selected)
}

// RunImport extracts, maps and writes one file, then records history and
// refreshes the hot cache. Rows committed before a failure stay committed.
func (s *Service) RunImport(ctx context.Context, req ImportRequest) (ImportResult, error) {
	result := ImportResult{Table: req.Table}

	table, err := Extract(req.FileName, req.Data, ExtractOptions{Sheet: req.Sheet, ScanRows: s.opts.HeaderScanRows})
	if err != nil {
		return result, err
	}
	result.Sheet = table.Sheet
	result.TotalRows = len(table.Rows)

	target, err := s.resolveTable(req, table.Headers, &result)
	if err != nil {
		return result, err
	}
	result.Table = target

	sch, err := s.registry.Get(target)
	if err != nil {
		return result, err
	}

	dir, err := s.Directory(ctx)
	if err != nil {
		s.logger.Warn("directory unavailable, importing without shop lookup", "error", err)
	}

	mapped, mapErr := s.mapper.Map(table.Rows, sch, MapOptions{
		ShopID:         req.ShopID,
		Directory:      dir,
		FirstRowNumber: table.HeaderRow + 2,
		RowNumbers:     table.RowNumbers,
		Headers:        table.Headers,
	})
	result.ValidRows = len(mapped.Valid)
	result.Skipped = mapped.Skipped
	result.SkippedRows = mapped.SkippedRows
	result.Missing = mapped.Missing
	s.logSkippedRows(ctx, target.FactTable(), req.FileName, mapped.SkippedRows)

	if mapErr != nil {
		result.History = s.recordHistory(ctx, req, &result, mapErr)
		return result, mapErr
	}

	progress := func(done, total int) {
		result.Written = done
		if req.Progress != nil {
			req.Progress(done, total)
		}
	}
	writeErr := s.writer.Write(ctx, target.FactTable(), mapped.Valid, progress)
	if writeErr != nil {
		s.logIngestionError(ctx, target.FactTable(), req.FileName, nil, writeErr)
	}

	result.History = s.recordHistory(ctx, req, &result, writeErr)

	if writeErr == nil || result.Written > 0 {
		if _, err := s.RefreshMetadata(ctx); err != nil {
			s.logger.Warn("refresh after import failed", "table", target, "error", err)
		}
	}

	if writeErr != nil {
		return result, writeErr
	}
	s.logger.Info("import finished",
		"file", req.FileName, "table", target, "written", result.Written, "skipped", result.Skipped)
	return result, nil
}

func (s *Service) resolveTable(req ImportRequest, headers []string, result *ImportResult) (domain.TableType, error) {
	detected, score, ok := schema.Detect(headers, s.registry.All(), s.opts.DetectionThreshold)
	result.Score = score
	if ok {
		result.Detected = detected
	}

	selected := req.Table
	switch {
	case selected == "" && !ok:
		return "", ErrNoTable
	case selected == "":
		return detected, nil
	case !ok || detected == selected || req.IgnoreDetection:
		return selected, nil
	case req.ConfirmRedirect == nil:
		return "", &TableMismatchError{Selected: selected, Detected: detected, Score: score}
	case req.ConfirmRedirect(detected, selected, score):
		s.logger.Info("import redirected to detected table", "selected", selected, "detected", detected, "score", score)
		result.Redirected = true
		return detected, nil
	}
	return selected, nil
}

func (s *Service) logSkippedRows(ctx context.Context, table, fileName string, skipped []SkippedRow) {
	if s.logRepo == nil || len(skipped) == 0 {
		return
	}
	entries := make([]domain.IngestionLogEntry, len(skipped))
	for i, row := range skipped {
		rowNumber := row.RowNumber
		entries[i] = domain.IngestionLogEntry{
			ID:           uuid.New(),
			TableName:    table,
			FileName:     fileName,
			RowNumber:    &rowNumber,
			ErrorMessage: "missing required fields: " + strings.Join(row.Missing, ", "),
			CreatedAt:    s.now().UTC(),
		}
	}
	if err := s.logRepo.RecordMany(ctx, entries); err != nil {
		s.logger.Warn("failed to record skipped rows", "table", table, "error", err)
	}
}

func (s *Service) logIngestionError(ctx context.Context, table, fileName string, rowNumber *int, err error) {
	if s.logRepo == nil || err == nil {
		return
	}
	entry := domain.IngestionLogEntry{
		ID:           uuid.New(),
		TableName:    table,
		FileName:     fileName,
		RowNumber:    rowNumber,
		ErrorMessage: err.Error(),
		CreatedAt:    s.now().UTC(),
	}
	if recErr := s.logRepo.Record(ctx, entry); recErr != nil {
		s.logger.Warn("failed to record ingestion error", "table", table, "error", recErr)
	}
}

func (s *Service) recordHistory(ctx context.Context, req ImportRequest, result *ImportResult, importErr error) domain.UploadHistoryRecord {
	record := domain.UploadHistoryRecord{
		ID:           uuid.New(),
		FileName:     req.FileName,
		FileSize:     int64(len(req.Data)),
		RowCount:     result.Written,
		SkippedCount: result.Skipped,
		UploadTime:   s.now().UTC(),
		Status:       domain.UploadStatusSuccess,
		TargetTable:  result.Table,
	}
	if importErr != nil {
		record.Status = domain.UploadStatusFailed
		record.Error = importErr.Error()
	}

	if err := s.appendHistory(ctx, record); err != nil {
		s.logger.Warn("failed to persist upload history", "file", req.FileName, "error", err)
	}
	return record
}

func (s *Service) appendHistory(ctx context.Context, record domain.UploadHistoryRecord) error {
	if s.store == nil {
		return nil
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	history, err := settings.Get(ctx, s.store, settings.KeyUploadHistory, []domain.UploadHistoryRecord{})
	if err != nil {
		return err
	}
	history = append(history, record)
	if over := len(history) - s.opts.HistoryRetention; over > 0 {
		history = history[over:]
	}
	return s.store.Save(ctx, settings.KeyUploadHistory, history)
}

// History returns the upload history, oldest first.
func (s *Service) History(ctx context.Context) ([]domain.UploadHistoryRecord, error) {
	if s.store == nil {
		return []domain.UploadHistoryRecord{}, nil
	}
	return settings.Get(ctx, s.store, settings.KeyUploadHistory, []domain.UploadHistoryRecord{})
}

// Directory returns the shop, SKU and agent directories.
func (s *Service) Directory(ctx context.Context) (domain.Directory, error) {
	if s.store == nil {
		return domain.Directory{}, nil
	}
	return settings.Get(ctx, s.store, settings.KeyDirectory, domain.Directory{})
}

// SaveDirectory replaces the stored directory.
func (s *Service) SaveDirectory(ctx context.Context, dir domain.Directory) error {
	if s.store == nil {
		return errors.New("settings store not configured")
	}
	return s.store.Save(ctx, settings.KeyDirectory, dir)
}

// RefreshMetadata anchors the hot window on the latest business date (today
// when the primary table is empty), reloads stats and window rows for every
// fact table and publishes them as one snapshot. On any error the previous
// snapshot stays in place.
func (s *Service) RefreshMetadata(ctx context.Context) (*hotcache.Snapshot, error) {
	if s.facts == nil {
		return nil, domain.ErrConnectionUnavailable
	}

	var errs *multierror.Error
	snap := &hotcache.Snapshot{
		Stats: make(map[string]domain.TableStats, len(domain.FactTables())),
		Rows:  make(map[string][]domain.CanonicalRow, len(domain.FactTables())),
	}

	primary, err := s.facts.Stats(ctx, domain.FactShangzhi)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("stats %s: %w", domain.FactShangzhi, err))
	}
	snap.Anchor = s.now().UTC()
	if primary.LatestDate != nil {
		snap.Anchor = primary.LatestDate.UTC()
	}
	snap.WindowStart, snap.WindowEnd = hotcache.Window(snap.Anchor, s.opts.HotWindowDays)
	snap.Anchor = snap.WindowEnd

	for _, table := range domain.FactTables() {
		stats := primary
		if table != domain.FactShangzhi {
			if stats, err = s.facts.Stats(ctx, table); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("stats %s: %w", table, err))
				continue
			}
		}
		snap.Stats[table] = stats

		rows, err := s.facts.ListByDateRange(ctx, table, snap.WindowStart, snap.WindowEnd)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("window %s: %w", table, err))
			continue
		}
		snap.Rows[table] = rows
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	snap.RefreshedAt = s.now().UTC()
	s.cache.Store(snap)
	s.logger.Info("metadata refreshed",
		"anchor", snap.Anchor.Format(domain.DateLayout),
		"window_start", snap.WindowStart.Format(domain.DateLayout))
	return snap, nil
}

// IngestionLogs lists recorded row problems for a table, optionally narrowed to one file.
func (s *Service) IngestionLogs(ctx context.Context, table, fileName string, limit, offset int) ([]domain.IngestionLogEntry, error) {
	if s.logRepo == nil {
		return nil, domain.ErrConnectionUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	return s.logRepo.List(ctx, table, fileName, limit, offset)
}

// Snapshot returns the current hot cache snapshot, nil before the first refresh.
func (s *Service) Snapshot() *hotcache.Snapshot {
	return s.cache.Load()
}

// ReadPage returns one page of a table and its total row count.
func (s *Service) ReadPage(ctx context.Context, table string, limit, offset int) ([]domain.CanonicalRow, int64, error) {
	if s.facts == nil {
		return []domain.CanonicalRow{}, 0, nil
	}
	return s.facts.ListPage(ctx, table, limit, offset)
}

// DeleteRows removes rows by id and refreshes the cache.
func (s *Service) DeleteRows(ctx context.Context, table string, ids []int64) (int64, error) {
	if s.facts == nil {
		return 0, domain.ErrConnectionUnavailable
	}
	deleted, err := s.facts.DeleteByIDs(ctx, table, ids)
	if err != nil {
		return 0, err
	}
	if _, err := s.RefreshMetadata(ctx); err != nil {
		return deleted, fmt.Errorf("rows deleted but refresh failed: %w", err)
	}
	return deleted, nil
}

// ClearTable removes every row of table and refreshes the cache.
func (s *Service) ClearTable(ctx context.Context, table string) (int64, error) {
	if s.facts == nil {
		return 0, domain.ErrConnectionUnavailable
	}
	deleted, err := s.facts.DeleteAll(ctx, table)
	if err != nil {
		return 0, err
	}
	if _, err := s.RefreshMetadata(ctx); err != nil {
		return deleted, fmt.Errorf("table cleared but refresh failed: %w", err)
	}
	return deleted, nil
}

// PublishResult counts the directory rows written per table.
type PublishResult struct {
	Shops int `json:"shops"`
	SKUs  int `json:"skus"`
}

// PublishDirectory writes the stored shop and SKU directories to the
// dimension tables.
func (s *Service) PublishDirectory(ctx context.Context) (PublishResult, error) {
	var result PublishResult
	dir, err := s.Directory(ctx)
	if err != nil {
		return result, err
	}

	shops := make([]domain.CanonicalRow, 0, len(dir.Shops))
	for _, shop := range dir.Shops {
		if strings.TrimSpace(shop.ID) == "" {
			continue
		}
		shops = append(shops, domain.CanonicalRow{
			"shop_id":   domain.StringValue(shop.ID),
			"shop_name": domain.StringValue(shop.Name),
			"platform":  optionalString(shop.Platform),
		})
	}
	skus := make([]domain.CanonicalRow, 0, len(dir.SKUs))
	for _, sku := range dir.SKUs {
		if strings.TrimSpace(sku.Code) == "" {
			continue
		}
		skus = append(skus, domain.CanonicalRow{
			"sku_code":   domain.StringValue(sku.Code),
			"sku_name":   optionalString(sku.Name),
			"shop_name":  optionalString(sku.ShopName),
			"cost_price": domain.NumberValue(sku.CostPrice),
			"sale_price": domain.NumberValue(sku.SalePrice),
		})
	}

	if err := s.writer.Write(ctx, domain.DimShops, shops, nil); err != nil {
		return result, err
	}
	result.Shops = len(shops)
	if err := s.writer.Write(ctx, domain.DimSKUs, skus, nil); err != nil {
		return result, err
	}
	result.SKUs = len(skus)
	s.logger.Info("directory published", "shops", result.Shops, "skus", result.SKUs)
	return result, nil
}

func optionalString(v string) domain.Value {
	if strings.TrimSpace(v) == "" {
		return domain.NullValue()
	}
	return domain.StringValue(v)
}
