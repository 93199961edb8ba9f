// Package media holds the file model shared by the intake pipeline: the
// extension allow-set, the beat/upload classification rule, and the failure
// kinds reported across package boundaries.
package media

import (
	"fmt"
	"strings"
)

// DefaultExtensions is the allow-set used when none is configured.
var DefaultExtensions = []string{"mp3", "wav", "m4a", "flac", "png"}

type Category int

const (
	CategoryUpload Category = iota
	CategoryBeat
)

var categoryName = map[Category]string{
	CategoryUpload: "upload",
	CategoryBeat:   "beat",
}

func (c Category) String() string {
	return categoryName[c]
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	for k, v := range categoryName {
		if v == string(text) {
			*c = k
			return nil
		}
	}

	return fmt.Errorf("unknown category %q", text)
}

type Location int

const (
	LocationLocal Location = iota
	LocationRemote
	LocationBoth
)

var locationName = map[Location]string{
	LocationLocal:  "local",
	LocationRemote: "remote",
	LocationBoth:   "both",
}

func (l Location) String() string {
	return locationName[l]
}

func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Location) UnmarshalText(text []byte) error {
	for k, v := range locationName {
		if v == string(text) {
			*l = k
			return nil
		}
	}

	return fmt.Errorf("unknown location %q", text)
}

type MediaFile struct {
	Name      string
	Extension string
	Category  Category
	Location  Location
}

// NewMediaFile derives the extension and category of a locally stored file.
func NewMediaFile(name string) MediaFile {
	return MediaFile{
		Name:      name,
		Extension: Extension(name),
		Category:  Classify(name),
		Location:  LocationLocal,
	}
}

// Extension returns the lower-cased text after the last dot, or "" when the
// name has no dot.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}

	return strings.ToLower(filename[i+1:])
}

// Classify files a name under CategoryBeat when it contains "beat" in any
// case, and CategoryUpload otherwise.
func Classify(filename string) Category {
	if strings.Contains(strings.ToLower(filename), "beat") {
		return CategoryBeat
	}

	return CategoryUpload
}

type AllowSet struct {
	exts map[string]struct{}
}

// NewAllowSet normalizes the given extensions (case, leading dot). With no
// extensions it falls back to DefaultExtensions.
func NewAllowSet(exts ...string) *AllowSet {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	set := &AllowSet{exts: make(map[string]struct{}, len(exts))}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		set.exts[ext] = struct{}{}
	}

	return set
}

func (s *AllowSet) IsAllowed(filename string) bool {
	if !strings.Contains(filename, ".") {
		return false
	}

	_, ok := s.exts[Extension(filename)]
	return ok
}

// Extensions returns the allow-set in no particular order.
func (s *AllowSet) Extensions() []string {
	out := make([]string, 0, len(s.exts))
	for ext := range s.exts {
		out = append(out, ext)
	}

	return out
}
