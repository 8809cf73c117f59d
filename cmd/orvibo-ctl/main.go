// Orvibo-ctl is the operator client for a running orvibo-bridge.
//
// It lists known devices, sends open, close and stop orders, follows the
// event stream in a terminal dashboard and finds bridges on the local
// network over mDNS.
//
// Usage:
//
//	orvibo-ctl [command] [flags]
//
// The bridge is located with --api, or by mDNS discovery when the flag is
// omitted. See 'orvibo-ctl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/orvibo-bridge/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orvibo-ctl",
	Short: "Orvibo bridge control utility",
	Long: `A command line client for the orvibo-bridge control API.

Lists devices and their last reported state, sends orders to devices and
shows a live dashboard of bridge events.

If --api is not given, the bridge is located on the local network via mDNS.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orvibo-ctl %s (commit: %s)\n", version.Version, version.Commit)
	},
}
