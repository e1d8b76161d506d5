// Command chatdctl inspects and follows chatd shards from the terminal.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/vango-dev/chatd/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "chatdctl",
		Short: "Inspect and follow chatd chat shards",
		Long: `chatdctl is a command line client for chatd shard servers.

It keeps the configured chats in sync over one websocket per shard.
It can also export chat history to a file or S3, and decode captured
protocol frames for debugging.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				errors.DisableColors()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		initCmd(),
		tailCmd(),
		sendCmd(),
		exportCmd(),
		decodeCmd(),
		encodeCmd(),
		urlCmd(),
		idCmd(),
		versionCmd(),
	)
	return rootCmd
}
