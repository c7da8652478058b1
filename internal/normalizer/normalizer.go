// Package normalizer converts heterogeneous CRM webhook payloads into the
// canonical event the rest of the pipeline consumes. Normalization happens at
// the boundary: downstream code never sees source-specific shapes.
package normalizer

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPayload marks a body that cannot produce a canonical event.
// Malformed input is not a transient failure and is never retried.
var ErrInvalidPayload = errors.New("invalid payload")

// parseWhen accepts the timestamp formats the sources actually send and
// falls back to now for anything unparseable or absent.
func parseWhen(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now()
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}

	// Unix seconds or milliseconds.
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	}

	return time.Now()
}

func parseAmount(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	// Sheets and CRMs in this market use comma decimals.
	raw = strings.ReplaceAll(raw, ".", "")
	raw = strings.ReplaceAll(raw, ",", ".")
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
