// ABOUTME: Renders embedded HTML fragments from feed entries into Slack mrkdwn
// ABOUTME: Walks the parsed fragment tree emitting delimiters on element open/close edges

package markup

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	DefaultBaseURL          = "https://gatech.instructure.com"
	DefaultTablePlaceholder = "*_See table on Canvas_*"
)

// Slack mrkdwn delimiters.
const (
	boldDelim   = "*"
	italicDelim = "_"
	linkOpen    = "<"
	linkClose   = ">"
	labelSep    = "|"
)

// Renderer converts a constrained HTML subset (b/strong, i/em, br, p, a, table)
// into Slack mrkdwn. Unknown elements are transparent.
type Renderer struct {
	BaseURL          string     // Origin used to resolve hrefs starting with "/"
	TablePlaceholder string     // Emitted in place of any table
	Sanitizer        *Sanitizer // Optional; applied before parsing
}

// NewRenderer creates a renderer with the given link origin and table placeholder.
// Empty values fall back to the package defaults.
func NewRenderer(baseURL, tablePlaceholder string) *Renderer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if tablePlaceholder == "" {
		tablePlaceholder = DefaultTablePlaceholder
	}
	return &Renderer{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		TablePlaceholder: tablePlaceholder,
	}
}

// renderState is the accumulator threaded through one traversal.
type renderState struct {
	out        strings.Builder
	pendingURL string // href of the open link whose label has not been seen yet
	hasPending bool
	tableDepth int // >0 while inside a table; all output is suppressed
}

func (s *renderState) skipping() bool {
	return s.tableDepth > 0
}

// Render converts one HTML fragment.
func (r *Renderer) Render(fragment string) (string, error) {
	if r.Sanitizer != nil {
		fragment = r.Sanitizer.Sanitize(fragment)
	}

	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return "", fmt.Errorf("parse content fragment: %w", err)
	}

	st := &renderState{}
	for _, n := range nodes {
		r.walk(n, st)
	}
	return st.out.String(), nil
}

func (r *Renderer) walk(n *html.Node, st *renderState) {
	switch n.Type {
	case html.ElementNode:
		r.open(n, st)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			r.walk(c, st)
		}
		r.close(n, st)
	case html.TextNode:
		r.text(n.Data, st)
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			r.walk(c, st)
		}
	}
}

func (r *Renderer) open(n *html.Node, st *renderState) {
	if n.DataAtom == atom.Table {
		if st.tableDepth == 0 {
			st.out.WriteString(r.TablePlaceholder)
		}
		st.tableDepth++
		return
	}
	if st.skipping() {
		return
	}

	switch n.DataAtom {
	case atom.B, atom.Strong:
		st.out.WriteString(boldDelim)
	case atom.I, atom.Em:
		st.out.WriteString(italicDelim)
	case atom.Br:
		st.out.WriteString("\n")
	case atom.A:
		if href, ok := linkTarget(n); ok {
			// Nested links are not supported: the innermost href wins.
			st.pendingURL = href
			st.hasPending = true
			st.out.WriteString(linkOpen)
		}
	}
}

func (r *Renderer) close(n *html.Node, st *renderState) {
	if n.DataAtom == atom.Table {
		st.tableDepth--
		return
	}
	if st.skipping() {
		return
	}

	switch n.DataAtom {
	case atom.B, atom.Strong:
		st.out.WriteString(boldDelim)
	case atom.I, atom.Em:
		st.out.WriteString(italicDelim)
	case atom.P:
		st.out.WriteString("\n")
	case atom.A:
		if _, ok := linkTarget(n); !ok {
			return
		}
		if st.hasPending {
			// Link without any text: emit the bare URL.
			st.out.WriteString(r.resolve(st.pendingURL))
			st.hasPending = false
		}
		st.out.WriteString(linkClose)
	}
}

func (r *Renderer) text(data string, st *renderState) {
	if st.skipping() {
		return
	}
	if !st.hasPending {
		st.out.WriteString(data)
		return
	}

	raw := st.pendingURL
	resolved := r.resolve(raw)
	st.out.WriteString(resolved)
	if data != raw && data != resolved {
		st.out.WriteString(labelSep)
		st.out.WriteString(data)
	}
	st.pendingURL = ""
	st.hasPending = false
}

// resolve makes a root-relative href absolute against BaseURL.
func (r *Renderer) resolve(href string) string {
	if !strings.HasPrefix(href, "/") {
		return href
	}
	base, err := url.Parse(r.BaseURL)
	if err != nil {
		return r.BaseURL + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return r.BaseURL + href
	}
	return base.ResolveReference(ref).String()
}

// linkTarget returns the non-empty href of an anchor.
func linkTarget(n *html.Node) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "href" {
			href := strings.TrimSpace(a.Val)
			return href, href != ""
		}
	}
	return "", false
}
