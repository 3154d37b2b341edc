package httpapi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeLogFieldStripsControlCharacters(t *testing.T) {
	require.Equal(t, "GET /api", sanitizeLogField("GET /api"))
	require.Equal(t, "abc", sanitizeLogField("a\x00b\x1bc\x7f"))
}

func TestSanitizeLogFieldStripsNewlines(t *testing.T) {
	in := "/api/send_tx\n2026-01-01 INFO fake line"
	out := sanitizeLogField(in)
	require.NotContains(t, out, "\n")
	require.NotContains(t, out, "\r")
}

func TestSanitizeLogFieldTruncates(t *testing.T) {
	out := sanitizeLogField(strings.Repeat("a", 1000))
	require.Len(t, out, maxLogFieldLen)
}
