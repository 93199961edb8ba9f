package config

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func ValidateAbsPath(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && path.IsAbs(s)
}

func ValidateIdentifier(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}

	return identifierPattern.MatchString(s)
}

// ValidateKeyPattern accepts an empty pattern or one that stays relative to
// the bucket root and contains the {filename} placeholder.
func ValidateKeyPattern(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}

	if strings.ContainsRune(s, 0) {
		return false
	}

	if !strings.Contains(s, "{filename}") {
		return false
	}

	// Windows drive letters are rejected even on unix hosts.
	if len(s) >= 2 && s[1] == ':' {
		return false
	}

	return filepath.IsLocal(filepath.FromSlash(s))
}
