package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)
	nonAlphanum = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify derives a URL-safe identifier from a human title: lowercase,
// non-alphanumeric runs collapsed to single hyphens, edges trimmed.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = nonAlphanum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// IsValidSlug reports whether slug contains only lowercase letters, digits,
// underscores and hyphens.
func IsValidSlug(slug string) bool {
	return slug != "" && slugPattern.MatchString(slug)
}

// ValidateSlug returns a descriptive error for an invalid slug.
func ValidateSlug(slug, paramName string) error {
	if slug == "" {
		return fmt.Errorf("%s is required", paramName)
	}
	if !IsValidSlug(slug) {
		return fmt.Errorf("%s must contain only lowercase letters, numbers, underscores, and hyphens (a-z0-9_-)", paramName)
	}
	return nil
}
