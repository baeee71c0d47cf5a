package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
)

var historyLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show band, antenna, tuner and link status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().GetStatus()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), status)
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

var bandsCmd = &cobra.Command{
	Use:   "bands [code]",
	Short: "List the band table, or one entry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := -1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid band code %q", args[0])
			}
			code = n
		}

		bands, err := newClient().GetBands(code)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), bands)
		}
		printBands(cmd.OutOrStdout(), bands)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent band changes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := newClient().GetHistory(historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), changes)
		}
		printHistory(cmd.OutOrStdout(), changes)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show change, failure and reconnect counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient().GetStats()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), stats)
		}

		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "%s:\t%v\n", k, stats[k])
		}
		return w.Flush()
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is answering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Ping(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "pong")
		return nil
	},
}

var rawCmd = &cobra.Command{
	Use:   "raw <command>",
	Short: "Send a raw control-socket line and print the JSON response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().SendCommand(strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.String())
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of changes to show")

	rootCmd.AddCommand(statusCmd, bandsCmd, historyCmd, statsCmd, pingCmd, rawCmd)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(out io.Writer, s *protocol.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Band:\t%s\n", s.Band)
	fmt.Fprintf(w, "Frequency:\t%s\n", s.Frequency)
	fmt.Fprintf(w, "Antenna:\t%s\n", s.SwitchPosition)
	fmt.Fprintf(w, "Tuner:\t%s\n", s.TunerSetting)
	fmt.Fprintf(w, "State:\t%s\n", s.State)
	fmt.Fprintf(w, "Logger link:\t%s (%d reconnects)\n", linkText(s.Connected), s.Reconnects)
	fmt.Fprintf(w, "Changes:\t%d ok, %d failed, %d unmatched, %d superseded\n",
		s.Changes, s.Failures, s.TableMisses, s.Superseded)
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", s.LastError)
	}
	fmt.Fprintf(w, "Uptime:\t%s\n", s.Uptime)
	w.Flush()
}

func linkText(connected bool) string {
	if connected {
		return "up"
	}
	return "down"
}

func printBands(out io.Writer, bands []protocol.Band) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tLABEL\tANTENNA\tTUNE\tTUNER")
	for _, b := range bands {
		fmt.Fprintf(w, "%d\t%s\t%s\t%ds\t%s\n", b.Code, b.Label, b.SwitchPosition, b.TuneSeconds, b.TunerCommand)
	}
	w.Flush()
}

func printHistory(out io.Writer, changes []protocol.ChangeRecord) {
	if len(changes) == 0 {
		fmt.Fprintln(out, "no band changes recorded")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tBAND\tANTENNA\tOUTCOME\tTRIES\tTUNED\tERROR")
	for _, c := range changes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%v\t%s\n",
			c.Timestamp.Local().Format("2006-01-02 15:04:05"),
			c.Label, c.SwitchPosition, c.Outcome, c.Attempts, c.Tuned, c.Error)
	}
	w.Flush()
}
