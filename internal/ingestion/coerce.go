package ingestion

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/opsdash/internal/domain"

	"github.com/spf13/cast"
)

const (
	// serialEpochOffset is the serial number of 1970-01-01 in spreadsheet day counts.
	serialEpochOffset = 25569
	msPerDay          = 86_400_000
)

var (
	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-1-2",
		"2006-1-2 15:04:05",
		"2006-1-2 15:04",
		"2006-1-2 15:04:05.000",
		"2006/1/2",
		"2006/1/2 15:04:05",
		"2006/1/2 15:04",
		"2006.1.2",
		"20060102",
		"01/02/2006",
	}

	numberNoise = strings.NewReplacer(
		"¥", "", "￥", "", "$", "", "€", "", "£", "",
		",", "", "，", "", " ", "", "\u00a0", "",
	)
)

// serialToTime converts a spreadsheet day-count serial into a UTC instant.
func serialToTime(serial float64) time.Time {
	ms := math.Round((serial - serialEpochOffset) * msPerDay)
	return time.UnixMilli(int64(ms)).UTC()
}

// SerialToDate renders a day-count serial as YYYY-MM-DD.
func SerialToDate(serial float64) string {
	return serialToTime(serial).Format(domain.DateLayout)
}

// SerialToTimestamp renders a day-count serial as an ISO instant.
func SerialToTimestamp(serial float64) string {
	return serialToTime(serial).Format(domain.TimestampLayout)
}

// cleanRaw trims strings and folds blank values to nil.
func cleanRaw(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		return trimmed
	case float64:
		return v
	default:
		s := strings.TrimSpace(cast.ToString(v))
		if s == "" {
			return nil
		}
		return s
	}
}

// normalizeDate turns a raw date cell into YYYY-MM-DD. Strings that do not
// parse are kept verbatim.
func normalizeDate(raw any) (domain.Value, bool) {
	switch v := cleanRaw(raw).(type) {
	case nil:
		return domain.NullValue(), false
	case float64:
		return domain.DateValue(SerialToDate(v)), true
	case string:
		if ts, err := parseTimestamp(v); err == nil {
			return domain.DateValue(ts.Format(domain.DateLayout)), true
		}
		return domain.DateValue(v), true
	}
	return domain.NullValue(), false
}

// toNumber applies the numeric cleansing rules: nil and "-" are 0, currency
// symbols and separators are stripped, a trailing percent sign scales by 1/100
// (rate fields are stored as fractions, see domain.UnitFraction) and anything
// that still does not parse to a finite number is 0.
func toNumber(raw any) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	case string:
		s := numberNoise.Replace(strings.TrimSpace(v))
		if s == "" || s == "-" {
			return 0
		}
		scale := 1.0
		if strings.HasSuffix(s, "%") {
			s = strings.TrimSuffix(s, "%")
			scale = 0.01
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f * scale
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0
		}
		return toNumber(f)
	}
}

// coerceValue converts a cleaned raw cell to the field's type.
func coerceValue(fieldType domain.FieldType, raw any) domain.Value {
	value := cleanRaw(raw)

	switch {
	case fieldType.IsNumeric():
		n := toNumber(value)
		if fieldType == domain.FieldTypeInteger {
			n = math.Round(n)
		}
		return domain.NumberValue(n)
	case fieldType == domain.FieldTypeTimestamp:
		switch v := value.(type) {
		case float64:
			return domain.TimestampValue(SerialToTimestamp(v))
		case string:
			ts, err := parseTimestamp(v)
			if err != nil {
				return domain.NullValue()
			}
			return domain.TimestampValue(ts.UTC().Format(domain.TimestampLayout))
		}
		return domain.NullValue()
	}

	switch v := value.(type) {
	case nil:
		return domain.NullValue()
	case float64:
		return domain.StringValue(strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		return domain.StringValue(v)
	}
	return domain.StringValue(cast.ToString(value))
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: "date", Value: raw, Message: ": unrecognized timestamp format"}
}
