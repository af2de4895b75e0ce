package utils

import "github.com/microcosm-cc/bluemonday"

// Generated blog bodies are model output and must not be trusted as-is.
// UGCPolicy keeps the semantic tags the blog template expects while
// stripping scripts and event handlers.
var sanitizer = bluemonday.UGCPolicy()

// SanitizeHTML cleans model-generated HTML before it is published.
func SanitizeHTML(input string) string {
	return sanitizer.Sanitize(input)
}
