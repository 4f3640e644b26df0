// Command gossipd runs a gossip fabric node or a one-shot quorum-read
// query against one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gossipd",
	Short: "Gossip-based monitoring fabric node",
	Long: `gossipd runs a single node of a gossip-based monitoring fabric:
anti-entropy peer exchange, a value-of-information filter over sampled
host metrics, and an accrual failure detector, exposed over HTTP.`,
}

func main() {
	rootCmd.AddCommand(newNodeCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newTelemetryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
