// ABOUTME: MCP server exposing the delivery ledger and a feed preview to AI agents
// ABOUTME: Wires tools, resources and prompts over a storage backend and a read-only previewer

package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/harper/herald/internal/forward"
	"github.com/harper/herald/internal/storage"
)

// Previewer shows what the next cycle would post without recording anything.
type Previewer interface {
	Preview(ctx context.Context) (*forward.Preview, error)
}

// Info describes the running configuration for status output.
type Info struct {
	Version string
	FeedURL string
	Policy  string
	Backend string
}

// Server wraps the MCP server with herald-specific context
type Server struct {
	mcpServer *server.MCPServer
	store     storage.Store
	previewer Previewer
	info      Info
}

// NewServer creates a new MCP server instance
func NewServer(store storage.Store, previewer Previewer, info Info) *Server {
	s := &Server{
		store:     store,
		previewer: previewer,
		info:      info,
	}
	if s.info.Version == "" {
		s.info.Version = "dev"
	}

	s.mcpServer = server.NewMCPServer(
		"herald",
		s.info.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
