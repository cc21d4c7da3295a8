package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Epoch milliseconds of 0001-01-01 and 9999-12-31T23:59:59.999Z, the range
// a calendar date can represent.
const (
	minEpochMillis = -62135596800000
	maxEpochMillis = 253402300799999
)

// Date is a UTC calendar date. The zero value means "not set".
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses "YYYY-MM-DD" or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// IsEmpty returns true if the date is not set.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// MonthIndex returns year*12 + month-1, a monotonic calendar month counter.
func (d Date) MonthIndex() int {
	return d.Year()*12 + int(d.Month()) - 1
}

// String returns the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD", or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// UnmarshalJSON accepts every timestamp shape that reaches the system from
// document stores and clients and normalizes it to a calendar date:
// "YYYY-MM-DD", RFC 3339 strings, epoch milliseconds, and
// {"seconds": n, "nanoseconds": n} objects (with or without leading underscores).
func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDate(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case '{':
		var ts struct {
			Seconds      *int64 `json:"seconds"`
			Nanoseconds  int64  `json:"nanoseconds"`
			USeconds     *int64 `json:"_seconds"`
			UNanoseconds int64  `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(data, &ts); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDate, err)
		}
		var secs, nanos int64
		switch {
		case ts.Seconds != nil:
			secs, nanos = *ts.Seconds, ts.Nanoseconds
		case ts.USeconds != nil:
			secs, nanos = *ts.USeconds, ts.UNanoseconds
		default:
			return fmt.Errorf("%w: timestamp object without seconds", ErrInvalidDate)
		}
		if secs < minEpochMillis/1000 || secs > maxEpochMillis/1000 {
			return fmt.Errorf("%w: epoch seconds %d out of range", ErrInvalidDate, secs)
		}
		*d = DateOf(time.Unix(secs, nanos))
		return nil
	default:
		var ms float64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidDate, string(data))
		}
		if ms < minEpochMillis || ms > maxEpochMillis {
			return fmt.Errorf("%w: epoch milliseconds %s out of range", ErrInvalidDate, string(data))
		}
		*d = DateOf(time.UnixMilli(int64(ms)))
		return nil
	}
}
