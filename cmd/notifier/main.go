// notifier reconciles notifications from a periodic poll and a LISTEN/NOTIFY change stream
// into a single deduplicated delivery to Telegram.
//
// Usage:
//
//	notifier run
//	notifier prefs show
//	notifier prefs set budget off
//	notifier dedup stats
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "notifier",
		Short: "Deliver deduplicated notifications from polling and realtime sources",
		Long: `notifier watches pending invitations and unread notifications for one recipient,
both by polling and through Postgres LISTEN/NOTIFY, and delivers each event to
Telegram at most once.

Configuration is read from the environment and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(dedupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
