package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Clock supplies the fallback "current" time. It is injected so that the
// derived trade date is deterministic under test.
type Clock func() time.Time

// SystemClock returns the current UTC time
func SystemClock() time.Time {
	return time.Now().UTC()
}

// timestampLayouts are tried in order; layouts without a zone parse as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"20060102",
}

// ParseTimestamp parses a broker timestamp value. Strings are matched against
// the known layouts; numbers are unix seconds, or milliseconds when large.
func ParseTimestamp(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return ParseTimestamp(*v)
	case float64:
		return fromUnix(v)
	case int64:
		return fromUnix(float64(v))
	case int:
		return fromUnix(float64(v))
	case json.Number:
		return parseTimestampString(v.String())
	case string:
		return parseTimestampString(v)
	default:
		return time.Time{}, false
	}
}

func parseTimestampString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(f)
	}

	return time.Time{}, false
}

func fromUnix(v float64) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Time{}, false
	}
	if v >= 1e12 {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// NormalizeTimestamp returns the first parseable value among the candidate
// fields, in priority order, together with the row key it came from.
func NormalizeTimestamp(row RawRow, candidates []string) (time.Time, string, bool) {
	idx := row.index()
	for _, candidate := range candidates {
		key, ok := idx[normalizeKey(candidate)]
		if !ok {
			continue
		}
		if t, ok := ParseTimestamp(row[key]); ok {
			return t, key, true
		}
	}
	return time.Time{}, "", false
}

// DeriveTradeDate picks the trade date from a row: an explicit date field
// first, then the entry timestamp, then the exit timestamp, then clock().
func DeriveTradeDate(row RawRow, fields FieldMap, clock Clock) (time.Time, Field) {
	var date, entry, exit *time.Time
	if t, _, ok := NormalizeTimestamp(row, fields[FieldDate]); ok {
		date = &t
	}
	if t, _, ok := NormalizeTimestamp(row, fields[FieldEntryTime]); ok {
		entry = &t
	}
	if t, _, ok := NormalizeTimestamp(row, fields[FieldExitTime]); ok {
		exit = &t
	}
	return ChooseTradeDate(date, entry, exit, clock)
}

// ChooseTradeDate applies the trade date priority to already-resolved values.
// The returned Field names the source; it is empty when clock() was used.
func ChooseTradeDate(date, entry, exit *time.Time, clock Clock) (time.Time, Field) {
	switch {
	case date != nil:
		return date.UTC(), FieldDate
	case entry != nil:
		return entry.UTC(), FieldEntryTime
	case exit != nil:
		return exit.UTC(), FieldExitTime
	}

	if clock == nil {
		clock = SystemClock
	}
	return clock().UTC(), ""
}
