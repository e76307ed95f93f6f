// ABOUTME: Run command: the long-lived forwarding daemon
// ABOUTME: Polls on the configured interval until SIGINT or SIGTERM

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the feed and forward new announcements until stopped",
	Long: `Run herald as a daemon.

One poll cycle runs immediately, then one every interval. A cycle that is
still running when the next one is due is skipped. Stops cleanly on
SIGINT or SIGTERM after the current post finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := openPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer p.Close()

		if cfg.MetricsAddr != "" {
			go serveMetrics(ctx, p)
		}

		slog.Info("herald starting",
			"feed_url", cfg.FeedURL,
			"channel_id", p.poster.Channel,
			"interval", cfg.Interval,
			"policy", p.policy.Name(),
			"backend", cfg.Backend,
		)
		err = p.fwd.Loop(ctx, cfg.Interval)
		slog.Info("herald stopped")
		return err
	},
}

func serveMetrics(ctx context.Context, p *pipeline) {
	if err := p.metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
		slog.Error("metrics server failed", "addr", cfg.MetricsAddr, "err", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
