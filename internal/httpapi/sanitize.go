package httpapi

import "strings"

// maxLogFieldLen caps caller-controlled values before they reach a log line
// or audit record.
const maxLogFieldLen = 256

// sanitizeLogField strips control characters (newlines included) from a
// caller-controlled string and truncates it, so a crafted path or header
// can't forge extra log entries or bloat the audit trail.
func sanitizeLogField(s string) string {
	if len(s) > maxLogFieldLen {
		s = s[:maxLogFieldLen]
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
