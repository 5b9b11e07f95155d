// Package markdown normalizes captured content to Markdown.
// Captures clipped from web pages arrive as HTML fragments; everything is
// stored as Markdown so clients render one format.
package markdown

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// htmlTagPattern matches common HTML tags to detect if a string contains HTML.
// Looks for opening tags like <p>, <br>, <div>, <b>, etc.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote|pre|code|img|table)[\s>/]`)

// ContainsHTML checks if a string appears to contain HTML markup.
// Returns true if common HTML tags are detected.
func ContainsHTML(s string) bool {
	return htmlTagPattern.MatchString(strings.ToLower(s))
}

// FromHTML converts HTML content to Markdown.
// If the input doesn't contain HTML, it's returned unchanged.
func FromHTML(s string) string {
	if s == "" || !ContainsHTML(s) {
		return s
	}

	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		// If conversion fails, keep the original content rather than lose it.
		return s
	}

	return strings.TrimSpace(md)
}
