// ABOUTME: Root Cobra command and global flags
// ABOUTME: Loads configuration and initializes logging before any subcommand runs

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harper/herald/internal/config"
	"github.com/harper/herald/internal/logger"
)

const annotationLogStderr = "log-stderr"

var (
	cfgPath   string
	logLevel  string
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: "Forward course announcements from an Atom feed to Slack",
	Long: `
██╗  ██╗███████╗██████╗  █████╗ ██╗     ██████╗
██║  ██║██╔════╝██╔══██╗██╔══██╗██║     ██╔══██╗
███████║█████╗  ██████╔╝███████║██║     ██║  ██║
██╔══██║██╔══╝  ██╔══██╗██╔══██║██║     ██║  ██║
██║  ██║███████╗██║  ██║██║  ██║███████╗██████╔╝
╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═════╝

Polls a Canvas announcements feed and posts each new entry
to a Slack channel, exactly once.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		// stdout belongs to the protocol for commands that speak on it
		var out io.Writer = os.Stdout
		if cmd.Annotations[annotationLogStderr] != "" {
			out = os.Stderr
		}
		logCloser, err = logger.InitWriter(out, cfg.LogLevel, config.ExpandPath(cfg.LogFile))
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: ./config.json or ~/.config/herald/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}
