// ABOUTME: bluemonday policy that reduces feed HTML to the tags the renderer understands
// ABOUTME: Drops script/style bodies and attributes other than anchor hrefs before rendering

package markup

import "github.com/microcosm-cc/bluemonday"

// Sanitizer strips feed HTML down to renderable structure.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds the policy. Table descendants stay so that their text
// is still recognizably inside the table when rendered.
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"b", "strong", "i", "em", "br", "p",
		"div", "span", "ul", "ol", "li", "blockquote",
		"table", "caption", "thead", "tbody", "tfoot", "tr", "th", "td",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(true)
	return &Sanitizer{policy: p}
}

// Sanitize returns the cleaned fragment.
func (s *Sanitizer) Sanitize(fragment string) string {
	return s.policy.Sanitize(fragment)
}
