// ABOUTME: Terminal-side content helpers for previewing announcements before they are posted
// ABOUTME: Converts source HTML to Markdown and shortens rendered text to a one-line excerpt

package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var htmlTagPattern = regexp.MustCompile(`<\s*(p|div|span|a|br|img|h[1-6]|ul|ol|li|table|tr|td|th|strong|em|b|i|code|pre|blockquote)[^>]*>`)

var blankLines = regexp.MustCompile(`\n{3,}`)

// IsHTML reports whether content looks like an HTML fragment.
func IsHTML(content string) bool {
	if strings.Contains(content, "<!DOCTYPE") || strings.Contains(content, "<html") {
		return true
	}
	return htmlTagPattern.MatchString(content)
}

// ToMarkdown converts an announcement's source HTML to Markdown for glamour.
// Text that is not HTML, or that fails to convert, comes back trimmed.
func ToMarkdown(content string) string {
	if !IsHTML(content) {
		return strings.TrimSpace(content)
	}

	markdown, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(markdown, "\n\n"))
}

// Excerpt collapses whitespace and cuts text to at most max runes, ending in
// "..." when shortened.
func Excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 3 {
		return string([]rune(text)[:max])
	}
	return strings.TrimSpace(string([]rune(text)[:max-3])) + "..."
}
