// Package duration codes the DD-hh:mm:ss wire format used for sailor and
// user time limits.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
)

var pattern = regexp.MustCompile(`^(\d+)-(\d{2}):(\d{2}):(\d{2})$`)

// Unlimited is the zero value; callers distinguish "no limit" from a
// genuine zero duration with the ok flag Parse returns, not by comparing
// against this constant.
const Unlimited = 0

// Parse converts a DD-hh:mm:ss string into seconds. An empty string parses
// as unlimited (ok=false). A malformed non-empty string is a domain error.
func Parse(s string) (seconds int64, ok bool, err error) {
	if s == "" {
		return Unlimited, false, nil
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false, fmt.Errorf("duration: %q does not match DD-hh:mm:ss", s)
	}
	days, _ := strconv.ParseInt(m[1], 10, 64)
	hh, _ := strconv.ParseInt(m[2], 10, 64)
	mm, _ := strconv.ParseInt(m[3], 10, 64)
	ss, _ := strconv.ParseInt(m[4], 10, 64)
	if hh > 23 || mm > 59 || ss > 59 {
		return 0, false, fmt.Errorf("duration: %q has an out-of-range field", s)
	}
	total := days*86400 + hh*3600 + mm*60 + ss
	if total < 0 {
		return 0, false, fmt.Errorf("duration: %q overflows", s)
	}
	if total == 0 {
		return Unlimited, false, nil
	}
	return total, true, nil
}

// Format is the inverse of Parse for a finite number of seconds.
func Format(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	rem := seconds % 86400
	hh := rem / 3600
	rem %= 3600
	mm := rem / 60
	ss := rem % 60
	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hh, mm, ss)
}
