package main

import (
	"github.com/spf13/cobra"
)

var (
	flagDebug    bool
	flagDBPath   string
	flagAgentBin string
	flagMetrics  string
)

var rootCmd = &cobra.Command{
	Use:   "coworkerd",
	Short: "Coworker session daemon",
	Long: `coworkerd manages coding-agent sessions for the Coworker desktop app.

It persists sessions and their message streams, runs agent turns against the
agent CLI, mediates tool-approval requests, and answers file searches. All
communication happens as newline-delimited JSON on stdin and stdout.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "override the session database path")

	serveCmd.Flags().StringVar(&flagAgentBin, "agent-bin", "", "override the agent CLI binary")
	serveCmd.Flags().StringVar(&flagMetrics, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
