// ABOUTME: Ledger commands to inspect and repair the durable delivery record
// ABOUTME: List, forget, reset, cursor and migrate between storage backends

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/herald/internal/config"
	"github.com/harper/herald/internal/content"
	"github.com/harper/herald/internal/storage"
	"github.com/harper/herald/internal/timeutil"
)

var (
	ledgerListLimit int
	ledgerListSince string
	ledgerResetYes  bool
	ledgerCursorSet string
	ledgerMigrateTo string
)

var ledgerCmd = &cobra.Command{
	Use:     "ledger",
	Aliases: []string{"l"},
	Short:   "Inspect and repair the delivery ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List delivered entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		now := time.Now()
		var since time.Time
		if ledgerListSince != "" {
			since, err = timeutil.ParsePeriod(ledgerListSince, now)
			if err != nil {
				return err
			}
		}

		records, err := store.ListRecords(cmd.Context(), ledgerListLimit)
		if err != nil {
			return fmt.Errorf("failed to list ledger: %w", err)
		}
		total, err := store.CountRecords(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to count ledger: %w", err)
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		shown := 0
		for _, r := range records {
			if !since.IsZero() && r.SeenAt.Before(since) {
				continue
			}
			shown++

			title := content.Excerpt(r.Title, config.SeparatorWidth)
			if title == "" {
				title = faint("(untitled)")
			}
			fmt.Printf("%s  %s\n", bold(title), faint(timeutil.Ago(r.SeenAt, now)))
			fmt.Printf("  %s\n", faint(r.EntryID))
			if !r.Published.IsZero() {
				fmt.Printf("  %s %s\n", faint("published"), r.Published.Local().Format(config.DateFormatShort))
			}
		}

		if shown == 0 {
			fmt.Println("No delivered entries.")
		}
		fmt.Printf("\n%s\n", faint(fmt.Sprintf("%d shown, %d in ledger", shown, total)))
		return nil
	},
}

var ledgerForgetCmd = &cobra.Command{
	Use:   "forget <entry-id>",
	Short: "Remove an entry so the next cycle posts it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		id := strings.TrimSpace(args[0])
		if err := store.Forget(cmd.Context(), id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("entry not in ledger: %s", id)
			}
			return fmt.Errorf("failed to forget entry: %w", err)
		}

		fmt.Printf("Forgot %s\n", id)
		return nil
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase every record, the cursor and cached validators",
	Long: `Erase the whole ledger. The next cycle will treat every entry in the
feed as new and post it, unless skip_backlog is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ledgerResetYes {
			return errors.New("refusing to reset without --yes")
		}

		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("failed to reset ledger: %w", err)
		}
		fmt.Println("Ledger reset.")
		return nil
	},
}

var ledgerCursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Show or set the cursor used by the cursor dedup policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger()
		if err != nil {
			return err
		}
		defer store.Close()

		if ledgerCursorSet != "" {
			t, err := time.Parse(time.RFC3339, ledgerCursorSet)
			if err != nil {
				return fmt.Errorf("invalid --set value %q: want RFC3339", ledgerCursorSet)
			}
			if err := store.SetCursor(cmd.Context(), t); err != nil {
				return fmt.Errorf("failed to set cursor: %w", err)
			}
			fmt.Printf("Cursor set to %s\n", t.Format(time.RFC3339))
			return nil
		}

		t, ok, err := store.Cursor(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read cursor: %w", err)
		}
		if !ok {
			fmt.Println("No cursor set.")
			return nil
		}
		fmt.Printf("%s (%s)\n", t.Format(time.RFC3339), timeutil.Ago(t, time.Now()))
		return nil
	},
}

var ledgerMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the ledger from the configured backend to another",
	Long: `Copy delivered records, the cursor and cached fetch validators from the
configured backend to the one named by --to. Records already present in the
destination are kept, so migrating twice is harmless.

Example:
  herald ledger migrate --to charm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ledgerMigrateTo == cfg.Backend {
			return fmt.Errorf("source and destination are both %q", cfg.Backend)
		}

		src, err := openLedger()
		if err != nil {
			return err
		}
		defer src.Close()

		dst, err := cfg.OpenBackend(ledgerMigrateTo)
		if err != nil {
			return fmt.Errorf("failed to open %s ledger: %w", ledgerMigrateTo, err)
		}
		defer dst.Close()

		summary, err := storage.MigrateData(cmd.Context(), src, dst)
		if err != nil {
			return err
		}

		fmt.Printf("Migrated %d records from %s to %s", summary.Records, cfg.Backend, ledgerMigrateTo)
		if summary.Cursor {
			fmt.Print(" (with cursor)")
		}
		fmt.Println()
		return nil
	},
}

func openLedger() (storage.Store, error) {
	store, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", cfg.Backend, err)
	}
	return store, nil
}

func init() {
	ledgerListCmd.Flags().IntVarP(&ledgerListLimit, "limit", "n", config.DefaultListLimit, "maximum entries to show (0 for all)")
	ledgerListCmd.Flags().StringVar(&ledgerListSince, "since", "", "only entries seen since: today, yesterday, week, month or a duration like 48h")
	ledgerResetCmd.Flags().BoolVar(&ledgerResetYes, "yes", false, "confirm erasing the ledger")
	ledgerCursorCmd.Flags().StringVar(&ledgerCursorSet, "set", "", "set the cursor to an RFC3339 time")
	ledgerMigrateCmd.Flags().StringVar(&ledgerMigrateTo, "to", config.BackendCharm, "destination backend: sqlite or charm")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerForgetCmd, ledgerResetCmd, ledgerCursorCmd, ledgerMigrateCmd)
	rootCmd.AddCommand(ledgerCmd)
}
