package time

import (
	"strings"
	"time"
)

// ShortDur shortens the string representation of a time.Duration from
// d.String(): "1m0s" becomes "1m" and "1h0m0s" becomes "1h".
func ShortDur(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	s := d.String()
	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}
	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}
	return s
}

// Since returns ShortDur of the time elapsed since start, rounded to
// milliseconds for log output.
func Since(start time.Time) string {
	return ShortDur(time.Since(start).Round(time.Millisecond))
}
