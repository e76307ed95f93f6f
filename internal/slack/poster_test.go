// ABOUTME: Tests for the Slack poster against an httptest stand-in for the Web API
// ABOUTME: Verifies attachment fields, timestamp omission, rate-limit retry and channel paging

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/harper/herald/internal/models"
)

type fakeSlack struct {
	mu         sync.Mutex
	posts      []postedMessage
	rateLimits int
	pages      [][]map[string]string
}

type postedMessage struct {
	Channel     string
	Text        string
	Attachments []slackapi.Attachment
}

func (f *fakeSlack) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.rateLimits > 0 {
			f.rateLimits--
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		msg := postedMessage{Channel: r.FormValue("channel"), Text: r.FormValue("text")}
		if raw := r.FormValue("attachments"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &msg.Attachments); err != nil {
				t.Errorf("decode attachments: %v", err)
			}
		}
		f.posts = append(f.posts, msg)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"` + msg.Channel + `","ts":"1700000000.000100"}`))
	})
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		page := 0
		if r.FormValue("cursor") == "page2" {
			page = 1
		}
		next := ""
		if page+1 < len(f.pages) {
			next = "page2"
		}
		body := map[string]any{
			"ok":                true,
			"channels":          f.pages[page],
			"response_metadata": map[string]string{"next_cursor": next},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
	return mux
}

func newPoster(t *testing.T, f *fakeSlack) *Poster {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	return New(Options{Token: "xoxb-test", APIURL: server.URL + "/", Channel: "C123"})
}

func TestDeliver_Attachment(t *testing.T) {
	f := &fakeSlack{}
	p := newPoster(t, f)

	entry := models.Entry{
		ID:        "tag:1",
		Title:     "  Exam moved \n",
		Author:    " Mary Watson ",
		Content:   "\n*Exam 1* is Friday\n",
		Link:      "https://gatech.instructure.com/courses/1/discussion_topics/10",
		Published: time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
	}
	if err := p.Deliver(context.Background(), entry); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(f.posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(f.posts))
	}
	msg := f.posts[0]
	if msg.Channel != "C123" {
		t.Errorf("unexpected channel %q", msg.Channel)
	}
	if msg.Text != DefaultMention {
		t.Errorf("unexpected text %q", msg.Text)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	a := msg.Attachments[0]
	if a.Fallback != "Exam moved" || a.Title != "Exam moved" {
		t.Errorf("title not trimmed: fallback=%q title=%q", a.Fallback, a.Title)
	}
	if a.AuthorName != "Mary Watson" {
		t.Errorf("unexpected author %q", a.AuthorName)
	}
	if a.Text != "*Exam 1* is Friday" {
		t.Errorf("unexpected text %q", a.Text)
	}
	if a.TitleLink != entry.Link {
		t.Errorf("unexpected title link %q", a.TitleLink)
	}
	if a.Color != DefaultColor || a.Footer != DefaultFooter {
		t.Errorf("unexpected color/footer %q/%q", a.Color, a.Footer)
	}
	if a.Ts.String() != "1705311000" {
		t.Errorf("unexpected ts %q", a.Ts)
	}
}

func TestAttachment_OmitsZeroTimestamp(t *testing.T) {
	p := New(Options{Channel: "C1", Footer: "via Test", Color: "#000000"})

	a := p.Attachment(models.Entry{ID: "x", Title: "No date"})
	if a.Ts != "" {
		t.Errorf("expected empty ts, got %q", a.Ts)
	}
	if a.Footer != "via Test" || a.Color != "#000000" {
		t.Errorf("custom presentation ignored: %+v", a)
	}
}

func TestDeliver_RetriesRateLimit(t *testing.T) {
	f := &fakeSlack{rateLimits: 1}
	p := newPoster(t, f)

	if err := p.Deliver(context.Background(), models.Entry{ID: "tag:2", Title: "Retry"}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(f.posts) != 1 {
		t.Errorf("expected 1 post after retry, got %d", len(f.posts))
	}
}

func TestDeliver_NoChannel(t *testing.T) {
	p := New(Options{Token: "xoxb-test"})
	if err := p.Deliver(context.Background(), models.Entry{ID: "x"}); err == nil {
		t.Fatal("expected error without channel")
	}
}

func TestResolveChannel_Pages(t *testing.T) {
	f := &fakeSlack{pages: [][]map[string]string{
		{{"id": "C1", "name": "general"}},
		{{"id": "C2", "name": "cs1332-announcements"}},
	}}
	p := newPoster(t, f)

	id, err := p.ResolveChannel(context.Background(), "#cs1332-announcements")
	if err != nil {
		t.Fatalf("ResolveChannel failed: %v", err)
	}
	if id != "C2" {
		t.Errorf("expected C2, got %q", id)
	}
}

func TestResolveChannel_NotFound(t *testing.T) {
	f := &fakeSlack{pages: [][]map[string]string{{{"id": "C1", "name": "general"}}}}
	p := newPoster(t, f)

	_, err := p.ResolveChannel(context.Background(), "missing")
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}
