package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSON(t *testing.T) {
	row := CanonicalRow{
		"sku_code": StringValue("SKU-1"),
		"paid":     NumberValue(1234.5),
		"brand":    NullValue(),
	}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sku_code":"SKU-1","paid":1234.5,"brand":null}`, string(data))

	var decoded CanonicalRow
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, NumberValue(1234.5), decoded["paid"])
	assert.True(t, decoded["brand"].IsNull())
}

func TestValueSQLArg(t *testing.T) {
	assert.Nil(t, NullValue().SQLArg())
	assert.Equal(t, int64(42), NumberValue(42).SQLArg())
	assert.Equal(t, 0.25, NumberValue(0.25).SQLArg())
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), DateValue("2026-03-10").SQLArg())
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), DateValue("2026-3-5").SQLArg())
	assert.Equal(t, "not-a-date", DateValue("not-a-date").SQLArg())
	assert.Equal(t, time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC), TimestampValue("2026-03-10T08:30:00.000Z").SQLArg())
}

func TestValueTextAndEmpty(t *testing.T) {
	assert.Equal(t, "1234.5", NumberValue(1234.5).Text())
	assert.Equal(t, "", NullValue().Text())
	assert.True(t, StringValue("").IsEmpty())
	assert.False(t, NumberValue(0).IsEmpty())

	row := CanonicalRow{"a": StringValue(""), "b": NumberValue(0)}
	assert.False(t, row.Has("a"))
	assert.True(t, row.Has("b"))
	assert.False(t, row.Has("c"))
}

func TestParseTableType(t *testing.T) {
	for _, raw := range []string{"shangzhi", " SHANGZHI ", "fact_shangzhi"} {
		got, err := ParseTableType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, TableShangzhi, got)
	}
	_, err := ParseTableType("dim_skus")
	assert.Error(t, err)

	assert.Equal(t, FactCustomerService, TableCustomerService.FactTable())
	assert.Equal(t, "tracked_sku_id", TableJingzhuntong.IdentifierField())
	assert.True(t, IsFactTable(FactJingzhuntong))
	assert.False(t, IsFactTable(DimShops))
}

func TestSchemaValidate(t *testing.T) {
	valid := Schema{Table: TableShangzhi, Fields: []FieldDefinition{
		{Key: "date", Type: FieldTypeString, Required: true},
		{Key: "sku_code", Type: FieldTypeString, Required: true},
	}}
	require.NoError(t, valid.Validate())
	assert.Len(t, valid.RequiredFields(), 2)

	dup := valid.Clone()
	dup.Fields = append(dup.Fields, FieldDefinition{Key: "date", Type: FieldTypeString})
	assert.ErrorContains(t, dup.Validate(), "duplicate field key")

	badType := valid.Clone()
	badType.Fields[0].Type = "DATE"
	assert.ErrorContains(t, badType.Validate(), "unknown type")

	assert.Error(t, Schema{Table: "users", Fields: valid.Fields}.Validate())
}

func TestDirectoryLookups(t *testing.T) {
	dir := Directory{
		Shops:  []Shop{{ID: "s1", Name: "旗舰店"}, {ID: "s2", Name: "s1"}},
		Agents: []Agent{{Account: "cs-01", Name: "小王", ShopName: "旗舰店"}},
	}

	shop, ok := dir.ShopByID("s1")
	require.True(t, ok)
	assert.Equal(t, "旗舰店", shop.Name)

	shop, ok = dir.ShopByID("旗舰店")
	require.True(t, ok)
	assert.Equal(t, "s1", shop.ID)

	_, ok = dir.ShopByID(" ")
	assert.False(t, ok)

	agent, ok := dir.AgentByAccount("小王")
	require.True(t, ok)
	assert.Equal(t, "cs-01", agent.Account)
}

func TestErrorWrapping(t *testing.T) {
	noData := &NoValidDataError{Rows: 3, Missing: []FieldCount{{Field: "SKU", Count: 3}}}
	assert.True(t, errors.Is(noData, ErrNoValidData))
	assert.Contains(t, noData.Error(), "SKU (3)")

	sheet := &MissingWorksheetError{Sheet: "明细"}
	assert.True(t, errors.Is(sheet, ErrExtraction))

	cause := errors.New("boom")
	werr := &WriteError{Table: FactShangzhi, Offset: 40, Kind: WriteErrorOther, Hint: "write failed", Err: cause}
	assert.ErrorIs(t, werr, cause)
	assert.Contains(t, werr.Error(), "aborted at row 40")
}

func TestParseDateAcceptsUnpaddedSpellings(t *testing.T) {
	want := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2026-03-05", "2026-3-5", "2026-3-5 10:00", "2026-3-5 10:00:07", "2026/3/5", "2026.03.05", "2026-03-05T22:10:00+08:00"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseDate("2026-13-01")
	assert.False(t, ok)
}
