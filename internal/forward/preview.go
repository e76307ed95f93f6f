// ABOUTME: Read-only preview of the current feed: extracted entries, their source HTML and novelty
// ABOUTME: Never writes to the ledger, so it is safe to run next to a live forwarder

package forward

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/harper/herald/internal/models"
)

// PreviewItem is one entry as it would be posted.
type PreviewItem struct {
	Entry models.Entry
	HTML  string // source content fragment, when gofeed could recover it
	New   bool   // the policy would deliver it now
}

// Preview describes the current feed document.
type Preview struct {
	Title string
	Link  string
	Items []PreviewItem
}

// NewCount returns how many items the policy would deliver.
func (p *Preview) NewCount() int {
	n := 0
	for _, it := range p.Items {
		if it.New {
			n++
		}
	}
	return n
}

// Preview fetches unconditionally and extracts without filtering or recording.
func (f *Forwarder) Preview(ctx context.Context) (*Preview, error) {
	res, err := f.fetcher.Fetch(ctx, f.feedURL, "", "")
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.feedURL, err)
	}

	feed, err := f.extractor.Extract(res.Body)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", f.feedURL, err)
	}

	fresh, err := f.policy.Peek(ctx, feed.Entries)
	if err != nil {
		return nil, err
	}

	p := &Preview{Link: feed.Link, Items: make([]PreviewItem, len(feed.Entries))}

	// gofeed gives us the feed title and the untouched HTML for display.
	html := map[string]string{}
	if parsed, err := gofeed.NewParser().Parse(bytes.NewReader(res.Body)); err == nil {
		p.Title = parsed.Title
		for _, item := range parsed.Items {
			html[strings.TrimSpace(item.GUID)] = item.Content
		}
	}

	for i, e := range feed.Entries {
		p.Items[i] = PreviewItem{Entry: e, HTML: html[e.ID], New: fresh[i]}
	}
	return p, nil
}
