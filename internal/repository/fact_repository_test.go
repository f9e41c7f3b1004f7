package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpsertRendersConflictClause(t *testing.T) {
	rows := []domain.CanonicalRow{
		{"date": domain.DateValue("2026-03-01"), "sku_code": domain.StringValue("A"), "paid_items": domain.NumberValue(2)},
		{"date": domain.DateValue("2026-03-01"), "sku_code": domain.StringValue("B")},
	}

	query, args, err := buildUpsert(domain.FactShangzhi, []string{"date", "sku_code"}, rows)
	require.NoError(t, err)

	assert.Equal(t,
		`INSERT INTO "fact_shangzhi" ("date", "paid_items", "sku_code") VALUES ($1, $2, $3), ($4, DEFAULT, $5)`+
			` ON CONFLICT ("date", "sku_code") DO UPDATE SET "paid_items" = EXCLUDED."paid_items"`,
		query)
	require.Len(t, args, 5)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), args[0])
	assert.Equal(t, int64(2), args[1])
	assert.Equal(t, "A", args[2])
	assert.Equal(t, "B", args[4])
}

func TestBuildUpsertDoNothingWhenOnlyKeyColumns(t *testing.T) {
	rows := []domain.CanonicalRow{{"sku_code": domain.StringValue("A")}}
	query, _, err := buildUpsert(domain.DimSKUs, []string{"sku_code"}, rows)
	require.NoError(t, err)
	assert.Contains(t, query, `ON CONFLICT ("sku_code") DO NOTHING`)
}

func TestBuildUpsertWithoutConflictKey(t *testing.T) {
	rows := []domain.CanonicalRow{{"shop_id": domain.StringValue("1"), "shop_name": domain.StringValue("x")}}
	query, _, err := buildUpsert(domain.DimShops, nil, rows)
	require.NoError(t, err)
	assert.NotContains(t, query, "ON CONFLICT")
}

func TestBuildUpsertDedupesWithinSlice(t *testing.T) {
	rows := []domain.CanonicalRow{
		{"date": domain.DateValue("2026-03-01"), "sku_code": domain.StringValue("A"), "paid_items": domain.NumberValue(1)},
		{"date": domain.DateValue("2026-03-01"), "sku_code": domain.StringValue("B"), "paid_items": domain.NumberValue(5)},
		{"date": domain.DateValue("2026-03-01"), "sku_code": domain.StringValue("A"), "paid_items": domain.NumberValue(9)},
	}
	_, args, err := buildUpsert(domain.FactShangzhi, []string{"date", "sku_code"}, rows)
	require.NoError(t, err)
	require.Len(t, args, 6)
	assert.Equal(t, int64(9), args[1])
	assert.Equal(t, "A", args[2])
	assert.Equal(t, int64(5), args[4])
}

func TestBuildUpsertDedupesDateSpellings(t *testing.T) {
	rows := []domain.CanonicalRow{
		{"date": domain.DateValue("2026-3-5"), "sku_code": domain.StringValue("A"), "paid_items": domain.NumberValue(1)},
		{"date": domain.DateValue("2026-03-05"), "sku_code": domain.StringValue("A"), "paid_items": domain.NumberValue(4)},
	}
	query, args, err := buildUpsert(domain.FactShangzhi, []string{"date", "sku_code"}, rows)
	require.NoError(t, err)

	assert.Contains(t, query, "VALUES ($1, $2, $3) ON CONFLICT")
	require.Len(t, args, 3)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), args[0])
	assert.Equal(t, int64(4), args[1])
}

func TestBuildUpsertRejectsUnknownTableAndColumns(t *testing.T) {
	_, _, err := buildUpsert("users; drop table x", nil, []domain.CanonicalRow{{"a": domain.StringValue("1")}})
	require.ErrorIs(t, err, domain.ErrUnknownTable)

	_, _, err = buildUpsert(domain.FactShangzhi, nil, []domain.CanonicalRow{{`bad"col`: domain.StringValue("1")}})
	var mismatch *domain.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, `bad"col`, mismatch.Column)
}

func TestBuildUpsertRejectsOversizedSlice(t *testing.T) {
	row := domain.CanonicalRow{}
	for i := 0; i < 100; i++ {
		row[fmt.Sprintf("c%03d", i)] = domain.NumberValue(1)
	}
	rows := make([]domain.CanonicalRow, 700)
	for i := range rows {
		rows[i] = row
	}
	_, _, err := buildUpsert(domain.FactShangzhi, nil, rows)
	var transient *domain.TransientWriteError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, domain.ReasonPayloadTooLarge, transient.Reason)
}

func TestTranslateError(t *testing.T) {
	perm := translateError(domain.FactShangzhi, &pgconn.PgError{Code: "42501", Message: "permission denied for table fact_shangzhi"})
	var permErr *domain.PermissionError
	require.ErrorAs(t, perm, &permErr)

	missing := translateError(domain.FactShangzhi, &pgconn.PgError{Code: "42703", Message: `column "coupon_amount" of relation "fact_shangzhi" does not exist`})
	var schemaErr *domain.SchemaMismatchError
	require.ErrorAs(t, missing, &schemaErr)
	assert.Equal(t, "coupon_amount", schemaErr.Column)

	for _, code := range []string{"08006", "53300", "57P01"} {
		var transient *domain.TransientWriteError
		require.ErrorAs(t, translateError(domain.FactShangzhi, &pgconn.PgError{Code: code}), &transient, code)
		assert.Equal(t, domain.ReasonNetwork, transient.Reason)
	}

	var tooLarge *domain.TransientWriteError
	require.ErrorAs(t, translateError(domain.FactShangzhi, errors.New("extended protocol limited to 65535 parameters")), &tooLarge)
	assert.Equal(t, domain.ReasonPayloadTooLarge, tooLarge.Reason)

	other := translateError(domain.FactShangzhi, &pgconn.PgError{Code: "23502"})
	assert.False(t, errors.As(other, &tooLarge))
	assert.Nil(t, translateError(domain.FactShangzhi, nil))
}

func TestValueFromPG(t *testing.T) {
	dateField := pgconn.FieldDescription{Name: "date", DataTypeOID: pgtype.DateOID}
	tsField := pgconn.FieldDescription{Name: "updated_at", DataTypeOID: pgtype.TimestamptzOID}
	plain := pgconn.FieldDescription{Name: "x"}

	day := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, domain.DateValue("2026-01-09"), valueFromPG(dateField, day))
	assert.Equal(t, domain.TimestampValue("2026-01-09T00:00:00.000Z"), valueFromPG(tsField, day))
	assert.Equal(t, domain.NumberValue(7), valueFromPG(plain, int64(7)))
	assert.Equal(t, domain.NullValue(), valueFromPG(plain, nil))

	var n pgtype.Numeric
	require.NoError(t, n.Scan("1234.5"))
	assert.Equal(t, domain.NumberValue(1234.5), valueFromPG(plain, n))
}
