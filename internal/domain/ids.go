package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	prefixedID = regexp.MustCompile(`^[pP](\d+)$`)
	digitRun   = regexp.MustCompile(`(\d+)`)
)

// NormalizeID canonicalizes a product identifier to its numeric-string form.
// Legacy local ids are prefixed ("p12"); the backend uses the bare number.
// Anything else is returned as-is.
func NormalizeID(id string) string {
	if m := prefixedID.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return id
}

// NumericID translates a local product identifier into the backend's numeric
// id. It accepts plain numbers and ids containing a digit run; ids with no
// digits report ok=false and the record must be skipped for that remote
// operation.
func NumericID(id string) (int64, bool) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n, true
	}
	if m := digitRun.FindStringSubmatch(trimmed); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
