package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DateLayout is the canonical date rendering.
const DateLayout = "2006-01-02"

// TimestampLayout renders instants the way ISO strings are stored (millisecond precision, UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// dateLayouts are the accepted spellings of a calendar date. Single-digit
// layout elements also accept zero-padded input.
var dateLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	time.RFC3339Nano,
	"2006/1/2",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006.1.2",
}

// ParseDate reads s as a calendar date at midnight UTC, discarding any time of day.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindDate
	KindTimestamp
)

// Value is a typed cell of a canonical row.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

func NullValue() Value { return Value{} }

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// DateValue holds a YYYY-MM-DD string.
func DateValue(s string) Value { return Value{Kind: KindDate, Str: s} }

// TimestampValue holds an ISO-8601 instant.
func TimestampValue(s string) Value { return Value{Kind: KindTimestamp, Str: s} }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsEmpty reports whether the value is null or an empty string.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString, KindDate, KindTimestamp:
		return v.Str == ""
	}
	return false
}

// Text renders the value as a string; numbers use the shortest exact form.
func (v Value) Text() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindNull:
		return ""
	}
	return v.Str
}

// Interface returns the plain Go representation (nil, string or float64).
func (v Value) Interface() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindNumber:
		return v.Num
	}
	return v.Str
}

// SQLArg returns the value as a query argument.
func (v Value) SQLArg() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindNumber:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
			return int64(v.Num)
		}
		return v.Num
	case KindDate:
		if t, ok := ParseDate(v.Str); ok {
			return t
		}
		return v.Str
	case KindTimestamp:
		if t, err := time.Parse(time.RFC3339Nano, v.Str); err == nil {
			return t
		}
		return v.Str
	}
	return v.Str
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case nil:
		*v = NullValue()
	case float64:
		*v = NumberValue(typed)
	case string:
		*v = StringValue(typed)
	default:
		*v = StringValue(string(data))
	}
	return nil
}

// CanonicalRow maps field keys to typed values.
type CanonicalRow map[string]Value

// Has reports whether key holds a non-empty value.
func (r CanonicalRow) Has(key string) bool {
	value, ok := r[key]
	return ok && !value.IsEmpty()
}

// Clone returns a shallow copy; values are immutable.
func (r CanonicalRow) Clone() CanonicalRow {
	clone := make(CanonicalRow, len(r))
	for k, v := range r {
		clone[k] = v
	}
	return clone
}

// RawRow maps a header label, as found in the file, to a raw cell (string, float64 or nil).
type RawRow map[string]any
