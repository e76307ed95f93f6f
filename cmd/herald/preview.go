// ABOUTME: Preview command: show what would be posted without touching the ledger
// ABOUTME: Renders source HTML with glamour next to the Slack mrkdwn that would be sent

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/herald/internal/config"
	"github.com/harper/herald/internal/content"
	"github.com/harper/herald/internal/forward"
)

var (
	previewNewOnly bool
	previewRaw     bool
	previewLimit   int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the feed as it would be posted, without recording anything",
	Long: `Fetch and extract the feed and print every entry: its header, the
original announcement rendered for the terminal and the Slack mrkdwn herald
would post. Entries the next cycle would deliver are marked NEW.

The ledger is only read, never written, so preview is safe to run next to
a live daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer p.Close()

		prev, err := p.fwd.Preview(cmd.Context())
		if err != nil {
			return err
		}
		printPreview(prev)
		return nil
	},
}

func printPreview(prev *forward.Preview) {
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen, color.Bold).SprintFunc()

	title := prev.Title
	if title == "" {
		title = cfg.FeedURL
	}
	fmt.Printf("%s  %s\n", bold(title), faint(prev.Link))
	fmt.Printf("%d entries, %d new\n\n", len(prev.Items), prev.NewCount())

	shown := 0
	for _, it := range prev.Items {
		if previewNewOnly && !it.New {
			continue
		}
		if previewLimit > 0 && shown >= previewLimit {
			break
		}
		shown++

		e := it.Entry
		marker := faint("seen")
		if it.New {
			marker = green("NEW")
		}
		fmt.Printf("%s %s\n", marker, bold(strings.TrimSpace(e.Title)))

		var meta []string
		if e.Author != "" {
			meta = append(meta, e.Author)
		}
		if !e.Published.IsZero() {
			meta = append(meta, e.Published.Local().Format(config.DateFormatLong))
		}
		meta = append(meta, e.ID)
		fmt.Printf("%s\n", faint(strings.Join(meta, " · ")))
		if e.Link != "" {
			fmt.Printf("%s\n", cyan(e.Link))
		}

		if !previewRaw && it.HTML != "" {
			markdown := content.ToMarkdown(it.HTML)
			rendered, err := glamour.Render(markdown, "dark")
			if err != nil {
				rendered = markdown + "\n"
			}
			fmt.Print(rendered)
		}

		fmt.Printf("%s\n%s\n", faint("slack mrkdwn:"), e.Content)
		fmt.Println(faint(strings.Repeat("─", config.SeparatorWidth)))
	}
}

func init() {
	previewCmd.Flags().BoolVar(&previewNewOnly, "new", false, "only show entries the next cycle would post")
	previewCmd.Flags().BoolVar(&previewRaw, "raw", false, "skip the rendered original, show only the mrkdwn")
	previewCmd.Flags().IntVarP(&previewLimit, "limit", "n", 0, "show at most n entries")
	rootCmd.AddCommand(previewCmd)
}
