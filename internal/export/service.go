// Package export streams persisted tables out as CSV or XLSX files.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/repository"
	"github.com/rpattn/opsdash/internal/schema"

	"github.com/xuri/excelize/v2"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for formats other than csv and xlsx.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts "csv" or "xlsx"; empty means csv.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

const defaultPageSize = 1000

var dimensionColumns = map[string][]column{
	domain.DimShops: {
		{Key: "shop_id", Header: "店铺ID"},
		{Key: "shop_name", Header: "店铺名称"},
		{Key: "platform", Header: "平台"},
	},
	domain.DimSKUs: {
		{Key: "sku_code", Header: "SKU"},
		{Key: "sku_name", Header: "商品名称"},
		{Key: "shop_name", Header: "店铺名称"},
		{Key: "cost_price", Header: "成本价"},
		{Key: "sale_price", Header: "售价"},
	},
}

type column struct {
	Key    string
	Header string
}

// Service pages through a table and writes it out.
type Service struct {
	facts    repository.FactRepository
	registry *schema.Registry
	pageSize int
	logger   *slog.Logger
}

type Option func(*Service)

// WithPageSize sets the number of rows read per page.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewService creates an export service.
func NewService(facts repository.FactRepository, registry *schema.Registry, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{facts: facts, registry: registry, pageSize: defaultPageSize, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarises one export.
type Result struct {
	Rows  int
	Bytes int64
}

// FileName builds a download name such as fact_shangzhi-20260310-150405.csv.
func FileName(table string, format Format, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", sanitizeFileComponent(table), now.Format("20060102-150405"), format)
}

// Export writes every row of table to w, headed by the schema labels.
func (s *Service) Export(ctx context.Context, w io.Writer, table string, format Format) (Result, error) {
	columns, err := s.columns(table)
	if err != nil {
		return Result{}, err
	}

	var result Result
	switch format {
	case FormatCSV:
		result, err = s.writeCSV(ctx, w, table, columns)
	case FormatXLSX:
		result, err = s.writeXLSX(ctx, w, table, columns)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return result, err
	}
	s.logger.Info("table exported", "table", table, "format", format, "rows", result.Rows, "bytes", result.Bytes)
	return result, nil
}

func (s *Service) columns(table string) ([]column, error) {
	if cols, ok := dimensionColumns[table]; ok {
		return cols, nil
	}
	for _, t := range domain.TableTypes() {
		if t.FactTable() != table {
			continue
		}
		sc, err := s.registry.Get(t)
		if err != nil {
			return nil, err
		}
		cols := make([]column, 0, len(sc.Fields)+1)
		cols = append(cols, column{Key: "id", Header: "id"})
		for _, f := range sc.Fields {
			cols = append(cols, column{Key: f.Key, Header: f.Label})
		}
		return cols, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTable, table)
}

// eachPage calls fn with consecutive pages until a short page is read.
func (s *Service) eachPage(ctx context.Context, table string, fn func([]domain.CanonicalRow) error) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, _, err := s.facts.ListPage(ctx, table, s.pageSize, offset)
		if err != nil {
			return fmt.Errorf("list %s at offset %d: %w", table, offset, err)
		}
		if len(rows) > 0 {
			if err := fn(rows); err != nil {
				return err
			}
		}
		if len(rows) < s.pageSize {
			return nil
		}
		offset += s.pageSize
	}
}

func (s *Service) writeCSV(ctx context.Context, w io.Writer, table string, columns []column) (Result, error) {
	buffered := bufio.NewWriterSize(w, 1<<16)
	counter := &countingWriter{writer: buffered}
	// Excel needs the BOM to read UTF-8 headers.
	if _, err := counter.Write([]byte("\ufeff")); err != nil {
		return Result{}, fmt.Errorf("write bom: %w", err)
	}
	csvWriter := csv.NewWriter(counter)

	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = c.Header
	}
	if err := csvWriter.Write(headers); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(columns))
	exported := 0
	err := s.eachPage(ctx, table, func(rows []domain.CanonicalRow) error {
		for _, row := range rows {
			for i, c := range columns {
				record[i] = row[c.Key].Text()
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
			exported++
		}
		csvWriter.Flush()
		return csvWriter.Error()
	})
	if err != nil {
		return Result{Rows: exported, Bytes: counter.count}, err
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return Result{Rows: exported, Bytes: counter.count}, fmt.Errorf("final flush: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return Result{Rows: exported, Bytes: counter.count}, fmt.Errorf("final buffered flush: %w", err)
	}
	return Result{Rows: exported, Bytes: counter.count}, nil
}

func (s *Service) writeXLSX(ctx context.Context, w io.Writer, table string, columns []column) (Result, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return Result{}, fmt.Errorf("open stream writer: %w", err)
	}

	headers := make([]any, len(columns))
	for i, c := range columns {
		headers[i] = c.Header
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}

	exported := 0
	err = s.eachPage(ctx, table, func(rows []domain.CanonicalRow) error {
		for _, row := range rows {
			values := make([]any, len(columns))
			for i, c := range columns {
				values[i] = row[c.Key].Interface()
			}
			cell, err := excelize.CoordinatesToCellName(1, exported+2)
			if err != nil {
				return err
			}
			if err := sw.SetRow(cell, values); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
			exported++
		}
		return nil
	})
	if err != nil {
		return Result{Rows: exported}, err
	}
	if err := sw.Flush(); err != nil {
		return Result{Rows: exported}, fmt.Errorf("flush sheet: %w", err)
	}

	counter := &countingWriter{writer: bufio.NewWriter(w)}
	if _, err := f.WriteTo(counter); err != nil {
		return Result{Rows: exported, Bytes: counter.count}, fmt.Errorf("write workbook: %w", err)
	}
	if err := counter.writer.Flush(); err != nil {
		return Result{Rows: exported, Bytes: counter.count}, fmt.Errorf("flush workbook: %w", err)
	}
	return Result{Rows: exported, Bytes: counter.count}, nil
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}
