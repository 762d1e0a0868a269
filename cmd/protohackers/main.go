// Command protohackers runs one of the protocol servers per process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "protohackers",
		Short: "Protocol servers for the Protohackers problems",
		Long: `protohackers runs a single network service per process.

Examples:
  protohackers list
  protohackers serve lrcp
  protohackers serve 9 --listen 0.0.0.0:9000 --metrics-addr :9100`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		listCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
