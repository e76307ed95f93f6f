// ABOUTME: MCP tool definitions and handlers for ledger inspection and repair
// ABOUTME: Lists and forgets delivered entries, previews the feed and reports ledger status

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/herald/internal/content"
	"github.com/harper/herald/internal/storage"
	"github.com/harper/herald/internal/timeutil"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	excerptLength    = 280
)

type ListDeliveredInput struct {
	Limit *int    `json:"limit,omitempty"`
	Since *string `json:"since,omitempty"`
}

type RecordOutput struct {
	EntryID   string     `json:"entry_id"`
	Title     string     `json:"title,omitempty"`
	Link      string     `json:"link,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	SeenAt    time.Time  `json:"seen_at"`
	CycleID   string     `json:"cycle_id,omitempty"`
}

type ListDeliveredOutput struct {
	Records []RecordOutput `json:"records"`
	Count   int            `json:"count"`
	Total   int            `json:"total"`
}

type ForgetEntryInput struct {
	EntryID string `json:"entry_id"`
}

type ForgetEntryOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	EntryID string `json:"entry_id"`
}

type PreviewItemOutput struct {
	EntryID   string     `json:"entry_id"`
	Title     string     `json:"title"`
	Author    string     `json:"author,omitempty"`
	Link      string     `json:"link,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	Mrkdwn    string     `json:"mrkdwn"`
	New       bool       `json:"new"`
}

type PreviewFeedOutput struct {
	Title    string              `json:"title,omitempty"`
	Link     string              `json:"link,omitempty"`
	Items    []PreviewItemOutput `json:"items"`
	NewCount int                 `json:"new_count"`
}

type LedgerStatusOutput struct {
	FeedURL      string     `json:"feed_url"`
	Policy       string     `json:"policy"`
	Backend      string     `json:"backend"`
	Delivered    int        `json:"delivered"`
	Cursor       *time.Time `json:"cursor,omitempty"`
	ETag         string     `json:"etag,omitempty"`
	LastModified string     `json:"last_modified,omitempty"`
	FetchedAt    *time.Time `json:"fetched_at,omitempty"`
}

func (s *Server) registerTools() {
	s.registerListDeliveredTool()
	s.registerForgetEntryTool()
	s.registerPreviewFeedTool()
	s.registerLedgerStatusTool()
}

func (s *Server) registerListDeliveredTool() {
	tool := mcp.Tool{
		Name:        "list_delivered",
		Description: "List announcements herald has already recorded as delivered to Slack, newest first. Use this to check whether a specific announcement was posted and when.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum records to return (default %d, max %d)", defaultListLimit, maxListLimit),
				},
				"since": map[string]interface{}{
					"type":        "string",
					"description": "Only records seen after this point: 'today', 'yesterday', 'week', 'month' or a duration such as '48h'",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListDelivered)
}

func (s *Server) registerForgetEntryTool() {
	tool := mcp.Tool{
		Name:        "forget_entry",
		Description: "Remove one entry from the delivery ledger so the next poll cycle posts it again. Only works with the ledger dedup policy; the cursor policy ignores per-entry records.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"entry_id": map[string]interface{}{
					"type":        "string",
					"description": "The entry id exactly as recorded, e.g. 'tag:canvas.instructure.com,2024-01-15:/courses/1/discussion_topics/10'",
				},
			},
			Required: []string{"entry_id"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleForgetEntry)
}

func (s *Server) registerPreviewFeedTool() {
	tool := mcp.Tool{
		Name:        "preview_feed",
		Description: "Fetch the announcements feed now and show every entry as it would be posted, marking which ones the next cycle would deliver. Does not post or record anything.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
	s.mcpServer.AddTool(tool, s.handlePreviewFeed)
}

func (s *Server) registerLedgerStatusTool() {
	tool := mcp.Tool{
		Name:        "ledger_status",
		Description: "Report the feed URL, dedup policy, storage backend, delivered count, cursor and the cached HTTP validators from the last successful fetch.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
	s.mcpServer.AddTool(tool, s.handleLedgerStatus)
}

func (s *Server) handleListDelivered(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListDeliveredInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	limit := defaultListLimit
	if input.Limit != nil {
		if *input.Limit <= 0 {
			return nil, fmt.Errorf("limit must be positive, got %d", *input.Limit)
		}
		limit = min(*input.Limit, maxListLimit)
	}

	var since time.Time
	if input.Since != nil && *input.Since != "" {
		t, err := timeutil.ParsePeriod(*input.Since, time.Now())
		if err != nil {
			return nil, err
		}
		since = t
	}

	records, err := s.store.ListRecords(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	total, err := s.store.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	out := ListDeliveredOutput{Records: []RecordOutput{}, Total: total}
	for _, r := range records {
		if !since.IsZero() && r.SeenAt.Before(since) {
			continue
		}
		out.Records = append(out.Records, recordOutput(r))
	}
	out.Count = len(out.Records)

	return jsonResult(out)
}

func (s *Server) handleForgetEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ForgetEntryInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	id := strings.TrimSpace(input.EntryID)
	if id == "" {
		return nil, errors.New("entry_id is required")
	}

	if err := s.store.Forget(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("entry not in ledger: %s", id)
		}
		return nil, fmt.Errorf("failed to forget entry: %w", err)
	}

	return jsonResult(ForgetEntryOutput{
		Success: true,
		Message: fmt.Sprintf("Entry '%s' removed from the ledger; it will be posted again if it is still in the feed", id),
		EntryID: id,
	})
}

func (s *Server) handlePreviewFeed(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.previewer == nil {
		return nil, errors.New("preview is not available")
	}
	p, err := s.previewer.Preview(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to preview feed: %w", err)
	}

	out := PreviewFeedOutput{Title: p.Title, Link: p.Link, Items: make([]PreviewItemOutput, 0, len(p.Items)), NewCount: p.NewCount()}
	for _, it := range p.Items {
		e := it.Entry
		item := PreviewItemOutput{
			EntryID: e.ID,
			Title:   strings.TrimSpace(e.Title),
			Author:  e.Author,
			Link:    e.Link,
			Mrkdwn:  content.Excerpt(e.Content, excerptLength),
			New:     it.New,
		}
		if !e.Published.IsZero() {
			published := e.Published
			item.Published = &published
		}
		out.Items = append(out.Items, item)
	}
	return jsonResult(out)
}

func (s *Server) handleLedgerStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.status(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(out)
}

func (s *Server) status(ctx context.Context) (*LedgerStatusOutput, error) {
	count, err := s.store.CountRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	out := &LedgerStatusOutput{
		FeedURL:   s.info.FeedURL,
		Policy:    s.info.Policy,
		Backend:   s.info.Backend,
		Delivered: count,
	}

	cursor, ok, err := s.store.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}
	if ok {
		out.Cursor = &cursor
	}

	st, err := s.store.FetchState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch state: %w", err)
	}
	out.ETag = st.ETag
	out.LastModified = st.LastModified
	if !st.FetchedAt.IsZero() {
		out.FetchedAt = &st.FetchedAt
	}
	return out, nil
}

func recordOutput(r storage.Record) RecordOutput {
	out := RecordOutput{
		EntryID: r.EntryID,
		Title:   r.Title,
		Link:    r.Link,
		SeenAt:  r.SeenAt,
		CycleID: r.CycleID,
	}
	if !r.Published.IsZero() {
		published := r.Published
		out.Published = &published
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
