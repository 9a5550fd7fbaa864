// Package coerce extracts scalar values from loosely-shaped JSON
// payloads. Vendors deliver numbers as strings, nest them in objects,
// or wrap them in lists; every function here is best-effort and never
// panics or returns an error.
package coerce

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// numericKeys is the priority list searched when a numeric field
// arrives as a nested object. USD-denominated keys win over raw ones.
var numericKeys = []string{
	"usd", "usd_price", "price_usd", "priceUsd", "price",
	"usd_market_cap", "market_cap_usd", "marketCapUsd", "market_cap", "marketCap",
	"usd_value", "value",
	"usd_volume_24h", "volume_24h", "volume24h", "volume",
	"amount", "token_amount", "tokenAmount",
}

// Float extracts a float64 from an arbitrary value. Strings are
// trimmed, thousands separators and a trailing percent sign removed.
// Maps are searched by priority key, then by all values; lists yield
// their first coercible element. Booleans and unparseable input report
// false.
func Float(v any) (float64, bool) {
	return coerceFloat(v, make(map[uintptr]bool))
}

// FloatOr is Float with a default for unparseable input.
func FloatOr(v any, def float64) float64 {
	if f, ok := Float(v); ok {
		return f
	}
	return def
}

func coerceFloat(v any, seen map[uintptr]bool) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case bool:
		return 0, false
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		return parseNumericString(val)
	case []byte:
		return parseNumericString(string(val))
	case map[string]any:
		return coerceFloatFromMap(val, seen)
	case []any:
		for _, elem := range val {
			if f, ok := coerceFloat(elem, seen); ok {
				return f, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

func parseNumericString(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, false
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "%")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// coerceFloatFromMap searches priority keys first, then remaining
// values in sorted key order. Previously visited maps short-circuit so
// self-referential payloads cannot recurse forever.
func coerceFloatFromMap(m map[string]any, seen map[uintptr]bool) (float64, bool) {
	id := mapIdentity(m)
	if seen[id] {
		return 0, false
	}
	seen[id] = true

	for _, key := range numericKeys {
		if nested, ok := m[key]; ok {
			if f, ok := coerceFloat(nested, seen); ok {
				return f, true
			}
		}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if f, ok := coerceFloat(m[k], seen); ok {
			return f, true
		}
	}
	return 0, false
}

// mapIdentity returns a stable identity for a map header, used only
// for cycle detection within a single coercion call.
func mapIdentity(m map[string]any) uintptr {
	return reflect.ValueOf(m).Pointer()
}

// millisecondThreshold: unix values above this are milliseconds.
const millisecondThreshold = 1_000_000_000_000

// timestampLayouts is the fallback chain for non-RFC3339 strings.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000-07:00",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp parses a timestamp from a number or string. Numbers are
// unix seconds, or milliseconds when larger than 1e12. Digit-only
// strings follow the same rule; anything else runs through an ISO-8601
// layout chain. Unparseable input reports false.
func Timestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val, true
	case float64:
		return unixTime(val), true
	case int:
		return unixTime(float64(val)), true
	case int64:
		return unixTime(float64(val)), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return unixTime(f), true
		}
		return time.Time{}, false
	case string:
		return parseTimestampString(val)
	default:
		return time.Time{}, false
	}
}

func unixTime(v float64) time.Time {
	if v > millisecondThreshold {
		v = v / 1000
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

func parseTimestampString(s string) (time.Time, bool) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return time.Time{}, false
	}

	if isDigits(cleaned) {
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return unixTime(f), true
		}
		return time.Time{}, false
	}

	// "Z" suffix is valid RFC3339; layouts without zone handle naive
	// vendor strings.
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// FirstString returns the first candidate that trims to a non-empty
// string. Byte slices are decoded and numbers formatted; booleans are
// never candidates so "true"/"false" cannot leak into text fields.
func FirstString(vals ...any) string {
	for _, v := range vals {
		switch val := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return trimmed
			}
		case []byte:
			if trimmed := strings.TrimSpace(string(val)); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			return strconv.Itoa(val)
		case int64:
			return strconv.FormatInt(val, 10)
		case json.Number:
			if s := strings.TrimSpace(val.String()); s != "" {
				return s
			}
		}
	}
	return ""
}
