package sanitize

import (
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const maxEmailLen = 254

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	cuidPattern  = regexp.MustCompile(`^c[a-z0-9]{20,30}$`)
	// groups: 1 date, 2 hour, 3 minute, 4 second, 5 offset hour, 6 offset minute
	isoPattern = regexp.MustCompile(
		`^(\d{4}-\d{2}-\d{2})(?:T(\d{2}):(\d{2})(?::(\d{2})(?:\.\d+)?)?(?:Z|[+-](\d{2}):(\d{2}))?)?$`,
	)
)

// Email reports whether s looks like local@domain.tld and fits in 254 bytes.
func Email(s string) bool {
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	return emailPattern.MatchString(s)
}

// Identifier accepts the two id schemes records are created with: canonical
// 8-4-4-4-12 UUIDs in either case, and CUIDs ("c" + 20..30 of [a-z0-9]).
func Identifier(s string) bool {
	if len(s) == 36 {
		// uuid.Parse also accepts urn: and {} forms, the length pins it to the canonical one
		_, err := uuid.Parse(s)
		return err == nil
	}
	return cuidPattern.MatchString(s)
}

// Date accepts YYYY-MM-DD and ISO-8601 datetimes with optional seconds,
// fraction and Z/±HH:MM offset, and only when they name a real calendar
// date and time of day (2024-02-30 and 13:00 month values are rejected).
func Date(s string) bool {
	m := isoPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	if _, err := time.Parse(time.DateOnly, m[1]); err != nil {
		return false
	}
	return inRange(m[2], 23) && inRange(m[3], 59) && inRange(m[4], 59) &&
		inRange(m[5], 23) && inRange(m[6], 59)
}

// inRange treats an absent (empty) group as valid
func inRange(group string, max int) bool {
	if group == "" {
		return true
	}
	n, err := strconv.Atoi(group)
	return err == nil && n >= 0 && n <= max
}

// OneOf reports whether v is exactly (case-sensitive) one of allowed.
func OneOf(v string, allowed ...string) bool {
	return slices.Contains(allowed, v)
}
