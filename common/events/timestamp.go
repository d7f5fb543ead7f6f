package events

import (
	"bytes"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// LocalDateTimeLayout is the wire format of event timestamps: an ISO-8601
// local date-time without offset. Fractional seconds are written only when
// non-zero.
const LocalDateTimeLayout = "2006-01-02T15:04:05.999999999"

var parseLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// LocalDateTime is a wall-clock instant without zone. All values are held in
// UTC. A value that could not be parsed is zero and keeps the original text
// in Raw so callers can apply their own fallback.
type LocalDateTime struct {
	time.Time
	Raw string
}

// NewLocalDateTime truncates t to microseconds, the precision of the store.
func NewLocalDateTime(t time.Time) LocalDateTime {
	return LocalDateTime{Time: t.UTC().Truncate(time.Microsecond)}
}

// ParseLocalDateTime parses s in any accepted layout. Inputs carrying an
// offset are converted to UTC.
func ParseLocalDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Valid reports whether a timestamp was present and parseable.
func (t LocalDateTime) Valid() bool {
	return !t.Time.IsZero()
}

// String formats the timestamp in LocalDateTimeLayout, or "" when invalid.
func (t LocalDateTime) String() string {
	if !t.Valid() {
		return ""
	}
	return t.Time.UTC().Format(LocalDateTimeLayout)
}

// MarshalJSON writes the local date-time string, or null when invalid.
func (t LocalDateTime) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON never fails: malformed values leave t zero with Raw set.
func (t *LocalDateTime) UnmarshalJSON(data []byte) error {
	*t = LocalDateTime{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Raw = string(data)
		return nil
	}
	if s == "" {
		return nil
	}

	parsed, err := ParseLocalDateTime(s)
	if err != nil {
		t.Raw = s
		return nil
	}
	t.Time = parsed
	return nil
}
