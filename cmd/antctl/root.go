package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/client"
)

var (
	socketPath string
	timeout    time.Duration
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "antctl",
	Short: "N3FJP antenna manager control tool",
	Long: `antctl - query a running n3fjpd over its Unix control socket.

Shows the current band, antenna switch position and tuner setting, the
configured band table, and the band-change history.

Examples:
  antctl status
  antctl history --limit 5
  antctl bands 40
  antctl raw STATS
  echo 'STATUS' | nc -U /tmp/n3fjpd.sock`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/tmp/n3fjpd.sock", "Unix socket path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Command timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON responses")
}

func newClient() *client.SocketClient {
	c := client.NewSocketClient(socketPath)
	c.SetTimeout(timeout)
	return c
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
