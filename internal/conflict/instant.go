package conflict

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp reports a missing or unparseable entity timestamp.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Instant converts a timestamp value into the canonical representation used
// for comparison: a UTC time truncated to milliseconds.
//
// Strings are parsed as ISO-8601 (an absent offset means UTC) or, when they
// hold only digits, as epoch milliseconds. Numbers, including json.Number,
// are epoch milliseconds.
func Instant(value any) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: missing", ErrInvalidTimestamp)
	case time.Time:
		if v.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidTimestamp)
		}
		return canonical(v), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: missing", ErrInvalidTimestamp)
		}
		return Instant(*v)
	case string:
		return parseString(v)
	case json.Number:
		return parseString(v.String())
	case int:
		return fromMillis(int64(v)), nil
	case int8:
		return fromMillis(int64(v)), nil
	case int16:
		return fromMillis(int64(v)), nil
	case int32:
		return fromMillis(int64(v)), nil
	case int64:
		return fromMillis(v), nil
	case uint8:
		return fromMillis(int64(v)), nil
	case uint16:
		return fromMillis(int64(v)), nil
	case uint32:
		return fromMillis(int64(v)), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return time.Time{}, fmt.Errorf("%w: %d out of range", ErrInvalidTimestamp, v)
		}
		return fromMillis(int64(v)), nil
	case uint64:
		if v > math.MaxInt64 {
			return time.Time{}, fmt.Errorf("%w: %d out of range", ErrInvalidTimestamp, v)
		}
		return fromMillis(int64(v)), nil
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, value)
	}
}

func parseString(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return fromMillis(ms), nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return fromFloat(f)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return canonical(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// fromFloat rejects values int64 cannot hold. float64(math.MaxInt64) rounds
// up to 2^63, so that bound is exclusive.
func fromFloat(v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, v)
	}
	return fromMillis(int64(v)), nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func canonical(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
