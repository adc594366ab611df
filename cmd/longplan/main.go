// Command longplan runs phased dual-agent longevity planning conversations
// and parallel benchmarks over them.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "longplan",
	Short: "Dual-agent longevity plan negotiation",
	Long: `Longplan orchestrates a phased two-agent conversation that negotiates a
structured longevity plan, validates scientific claims against an external
endpoint, books deterministic clinic slots, and persists a reproducible run
artifact set. The bench subcommand fans out runs at bounded concurrency and
reports latency, success, and plan-consistency metrics.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
