// ABOUTME: Streaming Atom entry extraction over a goxpp pull-parser token stream
// ABOUTME: Drives the region stack and entry builder, rendering content as each entry closes

package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"

	"github.com/harper/herald/internal/markup"
	"github.com/harper/herald/internal/models"
)

var (
	// ErrMalformedDocument covers decode errors and unbalanced regions.
	ErrMalformedDocument = errors.New("malformed feed document")
	// ErrMalformedTimestamp is returned when <published> is not RFC 3339.
	ErrMalformedTimestamp = errors.New("malformed published timestamp")
	// ErrUnsupportedFeed is returned for documents that are not Atom.
	ErrUnsupportedFeed = errors.New("unsupported feed format")
)

// Extractor turns Atom documents into finalized entries.
type Extractor struct {
	renderer *markup.Renderer
	authors  models.AuthorFormat
}

// New creates an Extractor. A nil renderer uses the package defaults.
func New(renderer *markup.Renderer, authors models.AuthorFormat) *Extractor {
	if renderer == nil {
		renderer = markup.NewRenderer("", "")
	}
	if authors == "" {
		authors = models.AuthorFirstLast
	}
	return &Extractor{renderer: renderer, authors: authors}
}

// Sniff rejects documents that are not Atom feeds.
func Sniff(doc []byte) error {
	if kind := gofeed.DetectFeedType(bytes.NewReader(doc)); kind != gofeed.FeedTypeAtom {
		return fmt.Errorf("%w: detected %s", ErrUnsupportedFeed, feedTypeName(kind))
	}
	return nil
}

// Extract parses one document and returns every entry in document order.
// It does not consult the ledger, so calling it twice on the same input
// yields the same result.
func (x *Extractor) Extract(doc []byte) (*models.Feed, error) {
	if err := Sniff(doc); err != nil {
		return nil, err
	}
	return x.extract(bytes.NewReader(doc))
}

func (x *Extractor) extract(r io.Reader) (*models.Feed, error) {
	p := xpp.NewXMLPullParser(r, false, charset.NewReaderLabel)
	run := &extraction{
		stack:   NewStack(),
		builder: builder{authors: x.authors, render: x.renderer.Render},
	}

	for {
		event, err := p.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		switch event {
		case xpp.StartTag:
			run.open(p.Name, p.Attrs)
		case xpp.Text:
			run.chars(p.Text)
		case xpp.EndTag:
			if err := run.close(p.Name); err != nil {
				return nil, err
			}
		case xpp.EndDocument:
			return run.finish()
		}
	}
}

// extraction is the state of one pass over a document.
type extraction struct {
	stack   *Stack
	builder builder
	feed    models.Feed

	text       string // most recent character-data run
	inText     bool   // previous token was character data
	afterClose bool   // last tag seen was a close tag
}

// regionFor maps element names to the region they open.
var regionFor = map[string]Region{
	"entry":     Entry,
	"title":     Title,
	"published": Published,
	"author":    Author,
	"content":   Content,
	"id":        ID,
}

func (x *extraction) open(name string, attrs []xml.Attr) {
	x.text = ""
	x.inText = false
	x.afterClose = false

	switch name {
	case "entry":
		x.stack.Push(Entry)
		x.builder.reset()
	case "link":
		x.link(attrs)
	case "title":
		// Only entry titles matter; the feed title is ignored.
		if x.stack.CurrentIs(Entry) {
			x.stack.Push(Title)
		}
	case "published", "author", "content", "id":
		x.stack.Push(regionFor[name])
	}
}

// link is interpreted immediately from its attributes and never pushes.
func (x *extraction) link(attrs []xml.Attr) {
	var href, rel string
	for _, a := range attrs {
		switch a.Name.Local {
		case "href":
			href = strings.TrimSpace(a.Value)
		case "rel":
			rel = a.Value
		}
	}
	if href == "" || (rel != "" && rel != "alternate") {
		return
	}

	if x.stack.CurrentIs(MetaData) {
		x.feed.Link = href
	} else {
		x.builder.entry.Link = href
	}
}

func (x *extraction) chars(s string) {
	switch {
	case x.inText:
		x.text += s
	case x.afterClose && strings.TrimSpace(s) == "":
		// Indentation between elements does not replace the last run.
		return
	default:
		x.text = s
		x.inText = true
	}
}

func (x *extraction) close(name string) error {
	text := x.text
	x.inText = false
	x.afterClose = true

	region, ok := regionFor[name]
	if !ok || !x.stack.CurrentIs(region) {
		return nil
	}
	x.stack.Pop()

	if region == Entry {
		x.feed.Entries = append(x.feed.Entries, x.builder.finish())
		return nil
	}
	return x.builder.assign(region, text)
}

func (x *extraction) finish() (*models.Feed, error) {
	if x.stack.Depth() != 1 {
		return nil, fmt.Errorf("%w: document ended with %d open regions", ErrMalformedDocument, x.stack.Depth()-1)
	}
	feed := x.feed
	return &feed, nil
}

func feedTypeName(kind gofeed.FeedType) string {
	switch kind {
	case gofeed.FeedTypeRSS:
		return "RSS"
	case gofeed.FeedTypeJSON:
		return "JSON Feed"
	case gofeed.FeedTypeAtom:
		return "Atom"
	default:
		return "unknown"
	}
}
