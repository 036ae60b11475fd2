package serialmux

import (
	"strconv"
	"strings"
)

// ParseReading turns one telemetry line into a display value. Lines of the
// form "key=value" or "key: value" keep only the value part. Numeric values
// become float64; anything else is returned as the trimmed string. ok is false
// for lines with no value at all.
func ParseReading(line string) (value any, ok bool) {
	s := strings.TrimSpace(line)
	if i := strings.LastIndexAny(s, "=:"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	if s == "" {
		return nil, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return s, true
}
