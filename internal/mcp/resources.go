// ABOUTME: MCP resource providers for herald
// ABOUTME: Exposes read-only JSON views of recent deliveries and ledger status

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ResourceData is the standard response format for all resources.
type ResourceData struct {
	Metadata ResourceMetadata  `json:"metadata"`
	Data     interface{}       `json:"data"`
	Links    map[string]string `json:"links"`
}

// ResourceMetadata contains metadata about the resource response.
type ResourceMetadata struct {
	Timestamp   time.Time `json:"timestamp"`
	Count       int       `json:"count"`
	ResourceURI string    `json:"resource_uri"`
}

const (
	uriDelivered = "herald://delivered/recent"
	uriStatus    = "herald://status"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         uriDelivered,
			Name:        "Recent Deliveries",
			Description: "The most recent announcements recorded in the delivery ledger, newest first",
			MIMEType:    "application/json",
		},
		s.readDelivered,
	)
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         uriStatus,
			Name:        "Ledger Status",
			Description: "Feed URL, dedup policy, delivered count, cursor and cached fetch validators",
			MIMEType:    "application/json",
		},
		s.readStatus,
	)
}

func (s *Server) readDelivered(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	records, err := s.store.ListRecords(ctx, defaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	out := make([]RecordOutput, 0, len(records))
	for _, r := range records {
		out = append(out, recordOutput(r))
	}
	return resourceJSON(request.Params.URI, len(out), out)
}

func (s *Server) readStatus(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := s.status(ctx)
	if err != nil {
		return nil, err
	}
	return resourceJSON(request.Params.URI, st.Delivered, st)
}

func resourceJSON(uri string, count int, data any) ([]mcp.ResourceContents, error) {
	resourceData := ResourceData{
		Metadata: ResourceMetadata{
			Timestamp:   time.Now(),
			Count:       count,
			ResourceURI: uri,
		},
		Data: data,
		Links: map[string]string{
			"delivered": uriDelivered,
			"status":    uriStatus,
		},
	}

	jsonBytes, err := json.MarshalIndent(resourceData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
