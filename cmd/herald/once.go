// ABOUTME: Once command: run a single poll cycle and exit
// ABOUTME: Suited to cron or systemd timers; an aborted cycle still exits 0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/herald/internal/forward"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one poll cycle and exit",
	Long: `Fetch the feed once, post anything new and exit.

A cycle that is aborted by a malformed document or an unreadable ledger
is logged and reported but does not change the exit status, matching
how the daemon treats it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := openPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer p.Close()

		rep, err := p.fwd.Cycle(ctx)
		if err != nil {
			slog.Error("cycle aborted", "cycle", rep.CycleID, "err", err)
		}
		printReport(rep, err)
		return nil
	},
}

func printReport(rep forward.Report, cycleErr error) {
	faint := color.New(color.Faint).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("%s %s\n", faint("cycle"), rep.CycleID)
	fmt.Printf("  result:    %s\n", rep.Result)
	fmt.Printf("  extracted: %d\n", rep.Extracted)
	fmt.Printf("  new:       %d\n", rep.New)
	fmt.Printf("  delivered: %s\n", green(rep.Delivered))
	if rep.Failed > 0 {
		fmt.Printf("  failed:    %s\n", red(rep.Failed))
	}
	if cycleErr != nil {
		fmt.Printf("  error:     %s\n", red(cycleErr))
	}
	fmt.Printf("  took:      %s\n", rep.Duration.Round(time.Millisecond))
}

func init() {
	rootCmd.AddCommand(onceCmd)
}
