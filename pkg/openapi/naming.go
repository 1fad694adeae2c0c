package openapi

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MaxToolNameLength caps generated tool names.
const MaxToolNameLength = 120

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeComponent lowercases value, collapses runs of characters outside
// [a-z0-9_] into "_" and trims underscores. An empty result yields fallback.
func SanitizeComponent(value, fallback string) string {
	normalized := invalidNameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "_")
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return fallback
	}
	return normalized
}

// UniqueName returns base, or base with the first free "_N" suffix (N >= 2),
// truncated so the result fits MaxToolNameLength. The caller records the
// returned name in taken.
func UniqueName(base string, taken map[string]bool) string {
	candidate := truncate(base, MaxToolNameLength)
	for suffix := 2; taken[candidate]; suffix++ {
		token := "_" + strconv.Itoa(suffix)
		candidate = truncate(base, max(1, MaxToolNameLength-len(token))) + token
	}
	return candidate
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
