package util

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

var ErrNoContentType = errors.New("Content-Type must be specified")

// MediaType returns the request's media type without parameters.
func MediaType(r *http.Request) (string, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", ErrNoContentType
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("invalid Content-Type: %w", err)
	}

	return mediaType, nil
}

// IsMultipart reports whether the request body is multipart/form-data.
func IsMultipart(r *http.Request) bool {
	mediaType, err := MediaType(r)
	return err == nil && mediaType == "multipart/form-data"
}

// PrefersJSON reports whether the Accept header asks for JSON ahead of HTML.
// Only explicit media types count; a bare */* keeps the HTML default.
func PrefersJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}

		switch mediaType {
		case "application/json":
			return true
		case "text/html", "application/xhtml+xml":
			return false
		}
	}

	return false
}
