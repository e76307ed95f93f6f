// ABOUTME: Cobra command for interactive first-time configuration.
// ABOUTME: Launches a bubbletea TUI wizard and writes config.json for the daemon.
package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/harper/herald/internal/config"
	"github.com/harper/herald/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure feed, Slack and ledger backend",
	Long:  "Interactive wizard that writes the feed URL, Slack bot token, channel and ledger backend to config.json.",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	model := tui.NewSetupModel(tui.Answers{
		FeedURL:     cfg.FeedURL,
		BotToken:    cfg.BotToken,
		ChannelName: cfg.ChannelName,
		Backend:     cfg.Backend,
	})

	p := tea.NewProgram(model)
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tui.SetupModel)
	if !final.ShouldSave() {
		fmt.Println("Setup canceled.")
		return nil
	}

	answers := final.Result()
	cfg.FeedURL = answers.FeedURL
	cfg.BotToken = answers.BotToken
	cfg.ChannelName = answers.ChannelName
	cfg.Backend = answers.Backend

	path := cfg.File
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := cfg.SaveFile(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Config saved to %s\n", path)
	return nil
}
