package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/repository"
	"github.com/rpattn/opsdash/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type pagedFacts struct {
	repository.FactRepository
	rows  []domain.CanonicalRow
	calls int
}

func (p *pagedFacts) ListPage(_ context.Context, _ string, limit, offset int) ([]domain.CanonicalRow, int64, error) {
	p.calls++
	if offset >= len(p.rows) {
		return nil, int64(len(p.rows)), nil
	}
	end := min(offset+limit, len(p.rows))
	return p.rows[offset:end], int64(len(p.rows)), nil
}

func skuRows(n int) []domain.CanonicalRow {
	rows := make([]domain.CanonicalRow, n)
	for i := range rows {
		rows[i] = domain.CanonicalRow{
			"sku_code":   domain.StringValue("SKU-" + string(rune('A'+i))),
			"sku_name":   domain.StringValue("商品"),
			"cost_price": domain.NumberValue(12.5),
		}
	}
	return rows
}

func TestExportCSVPagesThroughTable(t *testing.T) {
	facts := &pagedFacts{rows: skuRows(5)}
	svc := NewService(facts, schema.NewRegistry(nil), nil, WithPageSize(2))

	var buf bytes.Buffer
	result, err := svc.Export(context.Background(), &buf, domain.DimSKUs, FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Rows)
	assert.Equal(t, int64(buf.Len()), result.Bytes)
	assert.Equal(t, 3, facts.calls)

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(buf.String(), "\ufeff")), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "SKU,商品名称,店铺名称,成本价,售价", lines[0])
	assert.Equal(t, "SKU-A,商品,,12.5,", lines[1])
}

func TestExportExactPageMultiple(t *testing.T) {
	facts := &pagedFacts{rows: skuRows(4)}
	svc := NewService(facts, schema.NewRegistry(nil), nil, WithPageSize(2))

	result, err := svc.Export(context.Background(), &bytes.Buffer{}, domain.DimSKUs, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Rows)
	// The third, empty page ends the loop.
	assert.Equal(t, 3, facts.calls)
}

func TestExportXLSXUsesSchemaLabels(t *testing.T) {
	facts := &pagedFacts{rows: []domain.CanonicalRow{{
		"id":       domain.NumberValue(1),
		"date":     domain.DateValue("2026-03-10"),
		"sku_code": domain.StringValue("SKU-1"),
	}}}
	svc := NewService(facts, schema.NewRegistry(nil), nil)

	var buf bytes.Buffer
	result, err := svc.Export(context.Background(), &buf, domain.FactShangzhi, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "日期", "店铺名称", "SKU"}, rows[0][:4])
	assert.Equal(t, "SKU-1", rows[1][3])
}

func TestExportUnknownTable(t *testing.T) {
	svc := NewService(&pagedFacts{}, schema.NewRegistry(nil), nil)
	_, err := svc.Export(context.Background(), &bytes.Buffer{}, "users", FormatCSV)
	assert.ErrorIs(t, err, domain.ErrUnknownTable)
}

func TestExportStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(&pagedFacts{rows: skuRows(3)}, schema.NewRegistry(nil), nil)
	_, err := svc.Export(ctx, &bytes.Buffer{}, domain.DimSKUs, FormatCSV)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFormatAndFileName(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	now := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "fact_shangzhi-20260310-150405.xlsx", FileName(domain.FactShangzhi, FormatXLSX, now))
	assert.Equal(t, "export-20260310-150405.csv", FileName("  ", FormatCSV, now))
}
