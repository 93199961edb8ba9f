package util

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// KeyPattern generates remote object keys from a template. Supported
// placeholders:
//   - {year}     - 4-digit year (e.g., "2026")
//   - {month}    - 2-digit month (e.g., "01")
//   - {day}      - 2-digit day (e.g., "15")
//   - {filename} - the stored filename, verbatim
//   - {category} - "beat" or "upload"
//
// Example patterns:
//   - "{filename}" → "mybeat_v2.mp3"
//   - "{year}/{month}/{filename}" → "2026/01/mybeat_v2.mp3"
//   - "{category}/{filename}" → "beat/mybeat_v2.mp3"
type KeyPattern struct {
	pattern string
}

func NewKeyPattern(pattern string) *KeyPattern {
	return &KeyPattern{pattern: pattern}
}

// Generate fills in the pattern. A zero timestamp leaves the date
// placeholders untouched.
func (p *KeyPattern) Generate(filename string, category string, timestamp time.Time) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	result := p.pattern

	if !timestamp.IsZero() {
		result = strings.ReplaceAll(result, "{year}", fmt.Sprintf("%04d", timestamp.Year()))
		result = strings.ReplaceAll(result, "{month}", fmt.Sprintf("%02d", timestamp.Month()))
		result = strings.ReplaceAll(result, "{day}", fmt.Sprintf("%02d", timestamp.Day()))
	}

	result = strings.ReplaceAll(result, "{category}", category)
	result = strings.ReplaceAll(result, "{filename}", filename)

	result = strings.TrimPrefix(path.Clean("/"+result), "/")
	if result == "" {
		return "", fmt.Errorf("pattern %q produced an empty key", p.pattern)
	}

	return result, nil
}

// DefaultKeyPattern stores objects flat, named by their filename.
func DefaultKeyPattern() *KeyPattern {
	return NewKeyPattern("{filename}")
}
