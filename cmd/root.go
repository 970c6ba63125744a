// Package cmd wires the CLI commands for the staleness service.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staleness",
		Short: "Content-freshness service: when was this page really published?",
		Long: `staleness resolves publication and modification dates for web pages.
It fetches a capped prefix of each document, runs a ladder of extraction
strategies over it, classifies the result into freshness tiers, and caches
the answer. A free-tier daily quota and a remote license check gate the
expensive lookups.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults + STALENESS_* env)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
