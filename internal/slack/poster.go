// ABOUTME: Slack delivery collaborator posting one entry per message as a colored attachment
// ABOUTME: Resolves the target channel by name through paged conversations.list calls

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/harper/herald/internal/models"
)

// ErrChannelNotFound is returned when no visible channel has the requested name.
var ErrChannelNotFound = errors.New("channel not found")

const (
	DefaultMention = "<!channel>"
	DefaultColor   = "#EEB211"
	DefaultFooter  = "via Canvas"
)

// Options configures a Poster.
type Options struct {
	Token   string
	APIURL  string // override for tests; must end with "/"
	Channel string // channel id
	Mention string
	Color   string
	Footer  string
}

// Poster delivers entries to one Slack channel.
type Poster struct {
	api     *slackapi.Client
	Channel string
	mention string
	color   string
	footer  string
}

// New creates a Poster. Empty presentation options fall back to the defaults.
func New(opts Options) *Poster {
	var clientOpts []slackapi.Option
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slackapi.OptionAPIURL(opts.APIURL))
	}

	p := &Poster{
		api:     slackapi.New(opts.Token, clientOpts...),
		Channel: opts.Channel,
		mention: opts.Mention,
		color:   opts.Color,
		footer:  opts.Footer,
	}
	if p.mention == "" {
		p.mention = DefaultMention
	}
	if p.color == "" {
		p.color = DefaultColor
	}
	if p.footer == "" {
		p.footer = DefaultFooter
	}
	return p
}

// Attachment builds the message attachment for an entry.
func (p *Poster) Attachment(e models.Entry) slackapi.Attachment {
	title := strings.TrimSpace(e.Title)
	a := slackapi.Attachment{
		Fallback:   title,
		Color:      p.color,
		AuthorName: strings.TrimSpace(e.Author),
		Title:      title,
		TitleLink:  e.Link,
		Text:       strings.TrimSpace(e.Content),
		Footer:     p.footer,
	}
	if ts := e.PublishedUnix(); ts != 0 {
		a.Ts = json.Number(strconv.FormatInt(ts, 10))
	}
	return a
}

// Deliver posts one entry. A rate-limit response is retried once after the
// server-provided delay.
func (p *Poster) Deliver(ctx context.Context, e models.Entry) error {
	if p.Channel == "" {
		return fmt.Errorf("deliver %s: no channel configured", e.ID)
	}

	post := func() error {
		_, _, err := p.api.PostMessageContext(ctx, p.Channel,
			slackapi.MsgOptionText(p.mention, false),
			slackapi.MsgOptionAttachments(p.Attachment(e)),
		)
		return err
	}

	err := post()
	var rateLimited *slackapi.RateLimitedError
	if errors.As(err, &rateLimited) {
		slog.Warn("slack rate limited, retrying", "entry_id", e.ID, "retry_after", rateLimited.RetryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rateLimited.RetryAfter):
		}
		err = post()
	}
	if err != nil {
		return fmt.Errorf("post entry %s: %w", e.ID, err)
	}
	return nil
}

// ResolveChannel finds the id of the channel called name, with or without a leading "#".
func (p *Poster) ResolveChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	params := &slackapi.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           200,
		Types:           []string{"public_channel", "private_channel"},
	}

	for {
		channels, next, err := p.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		params.Cursor = next
	}
}
