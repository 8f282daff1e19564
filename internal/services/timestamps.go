package services

import (
	"strings"
	"time"
)

// clientTimeLayouts are tried in order. Layouts without a zone are read as UTC.
var clientTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseClientTime parses an ISO-8601 timestamp sent by a client and
// normalises it to UTC.
func ParseClientTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, &InvalidTimestampError{Value: raw}
	}
	// Lower-case designators are accepted by most clients' serialisers.
	if strings.HasSuffix(value, "z") {
		value = value[:len(value)-1] + "Z"
	}
	for _, layout := range clientTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &InvalidTimestampError{Value: raw}
}

// FormatTime renders t as RFC 3339 in UTC with a trailing Z.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
