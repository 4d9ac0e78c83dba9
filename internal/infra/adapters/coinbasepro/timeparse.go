package coinbasepro

import (
	"fmt"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp parses the ISO-8601 variants the exchange emits. A bare "+00" offset is
// expanded to "+00:00" first. Inputs without an offset are taken as UTC.
func parseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if strings.HasSuffix(value, "+00") {
		value += ":00"
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
