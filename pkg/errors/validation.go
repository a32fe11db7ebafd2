package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidateAssetRef validates an asset reference before it reaches a store.
// References are opaque content addresses (IPFS CIDs, relative file names);
// stores that map them onto a filesystem rely on this check to stay inside
// their root directory.
//
// Validation rules:
//   - Reference cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
//
// A single leading slash is tolerated; layouts written for the bucket
// renderer carry one and stores strip it.
func ValidateAssetRef(ref string) error {
	if ref == "" {
		return New(ErrCodeInvalidPath, "asset reference cannot be empty")
	}

	const maxRefLength = 500
	if len(ref) > maxRefLength {
		return New(ErrCodeInvalidPath, "asset reference too long (max %d characters)", maxRefLength)
	}

	for _, r := range ref {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "asset reference contains invalid characters")
		}
	}

	if strings.HasPrefix(ref, "//") {
		return New(ErrCodeInvalidPath, "asset reference cannot start with //")
	}

	if strings.Contains(ref, "..") {
		return New(ErrCodeInvalidPath, "asset reference cannot contain path traversal sequences (..)")
	}

	if strings.Contains(ref, "\\") {
		return New(ErrCodeInvalidPath, "asset reference cannot contain backslashes")
	}

	return nil
}

// slugRegex matches artifact slugs such as "0xb6da...c8-1076" or "blueprint-7".
var slugRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateSlug validates an artifact slug used to namespace cache keys.
func ValidateSlug(slug string) error {
	if slug == "" {
		return New(ErrCodeInvalidInput, "slug cannot be empty")
	}
	if !slugRegex.MatchString(slug) {
		return New(ErrCodeInvalidInput, "invalid slug: %q", slug)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
