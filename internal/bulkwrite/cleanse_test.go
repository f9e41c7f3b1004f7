package bulkwrite

import (
	"math"
	"testing"
	"time"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareCleansesFactRows(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	rows := []domain.CanonicalRow{{
		"id":         domain.NumberValue(7),
		"date":       domain.StringValue("2026-03-09T00:00:00Z"),
		"sku_code":   domain.StringValue("A1"),
		"paid_items": domain.NumberValue(math.NaN()),
		"visitors":   domain.NumberValue(math.Inf(1)),
	}}

	out := Prepare(domain.FactShangzhi, rows, now)
	require.Len(t, out, 1)
	row := out[0]

	_, hasID := row["id"]
	assert.False(t, hasID)
	assert.Equal(t, domain.DateValue("2026-03-09"), row["date"])
	assert.Equal(t, domain.NumberValue(0), row["paid_items"])
	assert.Equal(t, domain.NumberValue(0), row["visitors"])
	assert.Equal(t, domain.TimestampValue("2026-03-10T08:30:00.000Z"), row["updated_at"])

	// input is untouched
	assert.Equal(t, domain.NumberValue(7), rows[0]["id"])
	_, stamped := rows[0]["updated_at"]
	assert.False(t, stamped)
}

func TestPrepareKeepsIDOnDimensionTables(t *testing.T) {
	out := Prepare(domain.DimShops, []domain.CanonicalRow{{"id": domain.NumberValue(3), "shop_id": domain.StringValue("s1")}}, time.Now())
	assert.Equal(t, domain.NumberValue(3), out[0]["id"])
}

func TestPrepareDefaultsAccountNickname(t *testing.T) {
	rows := []domain.CanonicalRow{
		{"date": domain.DateValue("2026-03-01"), "tracked_sku_id": domain.StringValue("9")},
		{"date": domain.DateValue("2026-03-01"), "account_nickname": domain.StringValue("")},
		{"date": domain.DateValue("2026-03-01"), "account_nickname": domain.StringValue("main")},
	}
	out := Prepare(domain.FactJingzhuntong, rows, time.Now())
	assert.Equal(t, accountNicknameAbsent, out[0]["account_nickname"].Text())
	assert.Equal(t, accountNicknameAbsent, out[1]["account_nickname"].Text())
	assert.Equal(t, "main", out[2]["account_nickname"].Text())
}

func TestToDateValue(t *testing.T) {
	cases := map[string]domain.Value{
		"2026-01-09":          domain.DateValue("2026-01-09"),
		"2026/1/9":            domain.DateValue("2026-01-09"),
		"2026-3-5":            domain.DateValue("2026-03-05"),
		"2026-3-5 10:00":      domain.DateValue("2026-03-05"),
		"2026-3-5 10:00:07":   domain.DateValue("2026-03-05"),
		"2026-01-09 13:45:00": domain.DateValue("2026-01-09"),
		"":                    domain.NullValue(),
		"not a date":          domain.DateValue("not a date"),
	}
	for in, want := range cases {
		assert.Equal(t, want, toDateValue(domain.StringValue(in)), in)
	}
	assert.Equal(t, domain.NumberValue(45000), toDateValue(domain.NumberValue(45000)))
}

func TestConflictKeyReturnsCopy(t *testing.T) {
	key := ConflictKey(domain.FactJingzhuntong)
	assert.Equal(t, []string{"date", "account_nickname", "tracked_sku_id", "cost"}, key)
	key[0] = "mutated"
	assert.Equal(t, "date", ConflictKey(domain.FactJingzhuntong)[0])
	assert.Nil(t, ConflictKey("upload_history"))
}
