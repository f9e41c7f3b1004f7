package bulkwrite

import (
	"math"
	"strings"
	"time"

	"github.com/rpattn/opsdash/internal/domain"
)

const (
	identityField         = "id"
	updatedAtField        = "updated_at"
	accountNicknameField  = "account_nickname"
	accountNicknameAbsent = "未知账户"
)

// Prepare returns cleansed copies of rows ready for writing to table. It runs
// once per write, not per retry.
func Prepare(table string, rows []domain.CanonicalRow, now time.Time) []domain.CanonicalRow {
	stamp := domain.TimestampValue(now.UTC().Format(domain.TimestampLayout))
	fact := domain.IsFactTable(table)

	out := make([]domain.CanonicalRow, len(rows))
	for i, row := range rows {
		clean := make(domain.CanonicalRow, len(row)+1)
		for key, value := range row {
			if fact && key == identityField {
				continue
			}
			switch {
			case value.Kind == domain.KindNumber && (math.IsNaN(value.Num) || math.IsInf(value.Num, 0)):
				value = domain.NumberValue(0)
			case isDateKey(key):
				value = toDateValue(value)
			}
			clean[key] = value
		}
		if v, ok := clean[accountNicknameField]; ok && v.IsEmpty() {
			clean[accountNicknameField] = domain.StringValue(accountNicknameAbsent)
		} else if !ok && table == domain.FactJingzhuntong {
			clean[accountNicknameField] = domain.StringValue(accountNicknameAbsent)
		}
		clean[updatedAtField] = stamp
		out[i] = clean
	}
	return out
}

func isDateKey(key string) bool {
	return key == "date" || strings.HasSuffix(key, "_date")
}

// toDateValue reduces date-like values to YYYY-MM-DD; values it cannot read
// are left for the store to reject.
func toDateValue(v domain.Value) domain.Value {
	switch v.Kind {
	case domain.KindString, domain.KindDate, domain.KindTimestamp:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return domain.NullValue()
		}
		if t, ok := domain.ParseDate(s); ok {
			return domain.DateValue(t.Format(domain.DateLayout))
		}
		if len(s) >= 10 {
			if t, ok := domain.ParseDate(s[:10]); ok {
				return domain.DateValue(t.Format(domain.DateLayout))
			}
		}
		return domain.DateValue(s)
	}
	return v
}
