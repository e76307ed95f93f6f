// ABOUTME: Entry builder accumulating one entry's fields while its element is open
// ABOUTME: Converts captured character data per region and finalizes immutable Entry values

package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/harper/herald/internal/models"
)

// builder accumulates the entry currently open.
type builder struct {
	entry   models.Entry
	authors models.AuthorFormat
	render  func(string) (string, error)
}

func (b *builder) reset() {
	b.entry = models.Entry{}
}

// finish hands out the accumulated entry by value and starts a fresh one.
func (b *builder) finish() models.Entry {
	e := b.entry
	b.reset()
	return e
}

// assign stores the character data captured for a closed scalar region.
func (b *builder) assign(region Region, text string) error {
	switch region {
	case Title:
		b.entry.Title = text
	case Published:
		published, err := time.Parse(time.RFC3339, strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrMalformedTimestamp, text)
		}
		b.entry.Published = published
	case Author:
		b.entry.Author = b.authors.Apply(text)
	case Content:
		rendered, err := b.render(text)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		b.entry.Content = rendered
	case ID:
		b.entry.ID = strings.TrimSpace(text)
	}
	return nil
}
