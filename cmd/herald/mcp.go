// ABOUTME: MCP server command for herald CLI
// ABOUTME: Starts stdio-based MCP server exposing the ledger and a feed preview

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/harper/herald/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agents",
	Annotations: map[string]string{
		annotationLogStderr: "true",
	},
	Long: `Start the Model Context Protocol (MCP) server on stdio.

Agents can list what was delivered, preview the feed, inspect the cursor and
fetch validators, and forget an entry so it is posted again.

The server communicates via JSON-RPC on stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := mcp.Info{
			Version: Version,
			FeedURL: cfg.FeedURL,
			Policy:  cfg.DedupPolicy,
			Backend: cfg.Backend,
		}

		// Without a usable feed config the ledger tools still work.
		p, err := openPipeline(cmd.Context(), false)
		if err != nil {
			slog.Warn("feed preview unavailable", "err", err)
			store, err := openLedger()
			if err != nil {
				return err
			}
			defer store.Close()
			return serveMCP(mcp.NewServer(store, nil, info))
		}
		defer p.Close()

		return serveMCP(mcp.NewServer(p.store, p.fwd, info))
	},
}

func serveMCP(server *mcp.Server) error {
	if err := server.ServeStdio(); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
