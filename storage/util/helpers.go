package util

import (
	"strings"
)

// NormalizeBaseURL ensures the base URL ends with a slash. An empty input
// stays empty.
func NormalizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	trimmed = strings.TrimRight(trimmed, "/")
	return trimmed + "/"
}
