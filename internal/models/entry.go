// ABOUTME: Entry model representing one finalized Atom entry ready for delivery
// ABOUTME: Also defines the Feed extraction result and author display formats

package models

import (
	"fmt"
	"strings"
	"time"
)

// Entry is a single feed entry. It is only constructed once its enclosing
// <entry> element has closed; the fields never change afterwards.
type Entry struct {
	ID        string    // Stable identifier assigned by the feed (<id>)
	Title     string    // Raw title text, trimmed at delivery
	Author    string    // Display name after AuthorFormat normalization
	Content   string    // Rendered Slack mrkdwn
	Link      string    // Canonical page of the entry, absolute or relative
	Published time.Time // Zero when the entry has no <published> element
}

// Feed is the output of one extraction pass over a document.
type Feed struct {
	Link    string  // Canonical page of the feed itself
	Entries []Entry // Entries in document order (newest first by convention)
}

// AuthorFormat selects how author names are normalized.
type AuthorFormat string

const (
	// AuthorFirstLast keeps only the first and last space-separated tokens.
	AuthorFirstLast AuthorFormat = "first-last"
	// AuthorFull passes the author text through unchanged.
	AuthorFull AuthorFormat = "full"
)

// ParseAuthorFormat validates a configured author format.
func ParseAuthorFormat(s string) (AuthorFormat, error) {
	switch AuthorFormat(s) {
	case AuthorFirstLast, AuthorFull:
		return AuthorFormat(s), nil
	case "":
		return AuthorFirstLast, nil
	default:
		return "", fmt.Errorf("unknown author format %q (want %q or %q)", s, AuthorFirstLast, AuthorFull)
	}
}

// Apply normalizes a raw author name.
func (f AuthorFormat) Apply(name string) string {
	if f == AuthorFull {
		return name
	}
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	default:
		return fields[0] + " " + fields[len(fields)-1]
	}
}

// PublishedUnix returns the publish time as epoch seconds, or 0 if unset.
func (e Entry) PublishedUnix() int64 {
	if e.Published.IsZero() {
		return 0
	}
	return e.Published.Unix()
}
