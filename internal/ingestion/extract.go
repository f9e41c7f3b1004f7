package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// DefaultHeaderScanRows bounds the header row search.
const DefaultHeaderScanRows = 10

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ExtractOptions tunes extraction.
type ExtractOptions struct {
	// Sheet selects a worksheet by name; empty means the first sheet.
	Sheet string
	// ScanRows is how many leading rows are searched for the header.
	ScanRows int
}

// Table is the extracted content of one worksheet.
type Table struct {
	Sheet     string
	Headers   []string
	Rows      []domain.RawRow
	HeaderRow int // zero-based, -1 when no header was found
	// RowNumbers holds the one-based spreadsheet row of each entry of Rows.
	RowNumbers []int
}

// Extract parses an uploaded file into a header row and label-keyed rows.
func Extract(fileName string, payload []byte, opts ExtractOptions) (Table, error) {
	if opts.ScanRows <= 0 {
		opts.ScanRows = DefaultHeaderScanRows
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".xlsx", ".xlsm":
		return extractExcel(payload, opts)
	case ".xls":
		return extractXLS(payload, opts)
	case ".csv":
		return extractCSV(payload, opts)
	default:
		return Table{HeaderRow: -1}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}
}

func extractExcel(payload []byte, opts ExtractOptions) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Table{HeaderRow: -1}, fmt.Errorf("%w: failed to open xlsx: %v", domain.ErrExtraction, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{HeaderRow: -1}, domain.ErrNoSheet
	}

	sheet := sheets[0]
	if opts.Sheet != "" {
		idx, err := f.GetSheetIndex(opts.Sheet)
		if err != nil || idx < 0 {
			return Table{HeaderRow: -1}, &domain.MissingWorksheetError{Sheet: opts.Sheet}
		}
		sheet = opts.Sheet
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Table{HeaderRow: -1}, fmt.Errorf("%w: failed to read rows from xlsx: %v", domain.ErrExtraction, err)
	}

	cells := make([][]any, len(rows))
	for r, row := range rows {
		cells[r] = make([]any, len(row))
		for c, raw := range row {
			cells[r][c] = excelCell(f, sheet, r, c, raw)
		}
	}

	table := normalizeTable(cells, opts.ScanRows)
	table.Sheet = sheet
	return table, nil
}

// excelCell keeps text cells as strings and turns every other non-empty cell
// that parses as a number into float64, so date serials stay numeric.
func excelCell(f *excelize.File, sheet string, row, col int, raw string) any {
	if raw == "" {
		return nil
	}
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return raw
	}
	cellType, err := f.GetCellType(sheet, name)
	if err == nil && (cellType == excelize.CellTypeSharedString || cellType == excelize.CellTypeInlineString) {
		return raw
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

func extractXLS(payload []byte, opts ExtractOptions) (table Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			table, err = Table{HeaderRow: -1}, fmt.Errorf("%w: malformed xls: %v", domain.ErrExtraction, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(payload), "utf-8")
	if err != nil {
		return Table{HeaderRow: -1}, fmt.Errorf("%w: failed to open xls: %v", domain.ErrExtraction, err)
	}
	if wb == nil {
		return Table{HeaderRow: -1}, fmt.Errorf("%w: no workbook stream in xls", domain.ErrExtraction)
	}
	if wb.NumSheets() == 0 {
		return Table{HeaderRow: -1}, domain.ErrNoSheet
	}

	sheet := wb.GetSheet(0)
	if opts.Sheet != "" {
		sheet = nil
		for i := 0; i < wb.NumSheets(); i++ {
			if candidate := wb.GetSheet(i); candidate != nil && candidate.Name == opts.Sheet {
				sheet = candidate
				break
			}
		}
		if sheet == nil {
			return Table{HeaderRow: -1}, &domain.MissingWorksheetError{Sheet: opts.Sheet}
		}
	}
	if sheet == nil {
		return Table{HeaderRow: -1}, domain.ErrNoSheet
	}

	cells := make([][]any, int(sheet.MaxRow)+1)
	for r := range cells {
		row := sheet.Row(r)
		if row == nil {
			continue
		}
		last := row.LastCol()
		values := make([]any, last+1)
		for c := row.FirstCol(); c <= last; c++ {
			values[c] = xlsCell(row.Col(c))
		}
		cells[r] = values
	}

	table = normalizeTable(cells, opts.ScanRows)
	table.Sheet = sheet.Name
	return table, nil
}

// xlsCell turns the rendered text of a legacy cell back into a float64 when it
// is the canonical form of a number, so serials stay numeric and "00123" stays text.
func xlsCell(text string) any {
	if text == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil && strconv.FormatFloat(n, 'f', -1, 64) == text {
		return n
	}
	return text
}

func extractCSV(payload []byte, opts ExtractOptions) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	// Blank lines are skipped by the reader; cells is indexed by line so row
	// numbers still match the file.
	var cells [][]any
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{HeaderRow: -1}, fmt.Errorf("%w: failed to read csv: %v", domain.ErrExtraction, err)
		}
		line, _ := csvReader.FieldPos(0)
		for len(cells) < line-1 {
			cells = append(cells, nil)
		}
		row := make([]any, len(record))
		for c, value := range record {
			if value != "" {
				row[c] = value
			}
		}
		cells = append(cells, row)
	}

	table := normalizeTable(cells, opts.ScanRows)
	table.Sheet = "csv"
	return table, nil
}

// normalizeTable finds the header within the first scanRows rows and aligns
// every later row with it by position.
func normalizeTable(records [][]any, scanRows int) Table {
	table := Table{HeaderRow: -1, Headers: []string{}, Rows: []domain.RawRow{}, RowNumbers: []int{}}

	limit := min(scanRows, len(records))
	for idx := 0; idx < limit; idx++ {
		if !isBlankRow(records[idx]) {
			table.HeaderRow = idx
			break
		}
	}
	if table.HeaderRow < 0 {
		return table
	}

	headerRow := records[table.HeaderRow]
	table.Headers = make([]string, len(headerRow))
	for i, cell := range headerRow {
		table.Headers[i] = cellText(cell)
	}

	for idx := table.HeaderRow + 1; idx < len(records); idx++ {
		record := records[idx]
		if isBlankRow(record) {
			continue
		}
		row := make(domain.RawRow, len(table.Headers))
		hasValue := false
		for col, header := range table.Headers {
			if header == "" {
				continue
			}
			var value any
			if col < len(record) {
				value = record[col]
			}
			row[header] = value
			if value != nil {
				hasValue = true
			}
		}
		if !hasValue {
			continue
		}
		table.Rows = append(table.Rows, row)
		table.RowNumbers = append(table.RowNumbers, idx+1)
	}
	return table
}

func isBlankRow(row []any) bool {
	for _, cell := range row {
		if cellText(cell) != "" {
			return false
		}
	}
	return true
}

func cellText(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
