// ABOUTME: MCP prompt definitions and handlers
// ABOUTME: Provides a workflow for tracking down an announcement that never reached Slack

package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(
		mcp.Prompt{
			Name:        "missing-announcement",
			Description: "Investigate why a course announcement did not show up in the Slack channel and, if appropriate, queue it for re-delivery",
			Arguments: []mcp.PromptArgument{
				{
					Name:        "title",
					Description: "Title, or part of the title, of the announcement that is missing",
					Required:    false,
				},
			},
		},
		s.handleMissingAnnouncement,
	)
}

func (s *Server) handleMissingAnnouncement(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	target := "the announcement the user is asking about"
	if title := req.Params.Arguments["title"]; title != "" {
		target = fmt.Sprintf("the announcement titled %q", title)
	}

	template := fmt.Sprintf(`# Missing Announcement

Find out what happened to %s.

## Step 1: Check the feed
Call **preview_feed**. If the entry is not in the feed at all, the course site has not published it yet or it was removed; stop here and say so.

## Step 2: Check the ledger
Call **list_delivered** with since="week". If the entry is listed, herald recorded it as delivered at seen_at. Under the ledger policy an entry is recorded before it is posted, so a Slack outage at that moment can drop it.

## Step 3: Check status
Call **ledger_status**. Under the cursor policy, entries published before the cursor are never posted; note the cursor time and the entry's published time.

## Step 4: Re-deliver if needed
If the entry is in the feed, marked delivered, and the user confirms it never reached Slack, call **forget_entry** with its entry_id. The next poll cycle will post it.

Report what you found in two or three sentences.
`, target)

	return &mcp.GetPromptResult{
		Description: "Workflow for tracing a missing announcement",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: template,
				},
			},
		},
	}, nil
}
