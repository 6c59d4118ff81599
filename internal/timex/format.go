// Package timex turns absolute expiry timestamps into short relative
// durations ("in 5 minutes") and keeps rendered values current.
package timex

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Never is the raw expiry value of a key that does not expire.
const Never = "-1"

var (
	units = []string{"seconds", "minutes", "hours", "days", "weeks"}
	steps = []float64{60, 60, 24, 7}
)

// FormatUntil describes the time left until target (Unix seconds), coarsened
// to the largest sensible unit. A value only moves up the unit ladder once it
// is more than twice the next conversion factor, so 100 seconds stay seconds
// and 125 seconds become "in 2 minutes". Weeks is the last unit.
//
// Values below 5 are rounded to the nearest 0.2, larger ones to a whole
// number. Unit names are always plural.
func FormatUntil(target int64, now time.Time) string {
	// Seconds are subtracted as numbers; a time.Duration saturates after
	// about 292 years.
	remaining := float64(target-now.Unix()) - float64(now.Nanosecond())/1e9
	if remaining <= 0 {
		return "now"
	}

	index := 0
	for index < len(steps) && remaining > 2*steps[index] {
		remaining /= steps[index]
		index++
	}

	if remaining < 5 {
		remaining = math.Round(remaining*5) / 5
	} else {
		remaining = math.Round(remaining)
	}

	return fmt.Sprintf("in %s %s", strconv.FormatFloat(remaining, 'f', -1, 64), units[index])
}

// FormatExpiry formats a raw expiry attribute. It reports false, leaving the
// caller's text untouched, for the Never sentinel and for values that are not
// an integer number of seconds.
func FormatExpiry(raw string, now time.Time) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == Never {
		return "", false
	}

	// Trailing garbage such as "1700000030abc" is rejected, not truncated.
	target, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", false
	}

	return FormatUntil(target, now), true
}
