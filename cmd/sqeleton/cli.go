package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/sqeleton/internal/config"
	"github.com/user/sqeleton/internal/store"
	"github.com/user/sqeleton/pkg/client"
)

var (
	useH2C     bool
	outputJSON bool
	wipeAll    bool
)

func addClientFlags(cmds ...*cobra.Command) {
	d := config.Default()
	for _, cmd := range cmds {
		cmd.Flags().String("server", d.ServerURL, "sqeleton server URL")
		cmd.Flags().BoolVar(&useH2C, "h2c", false, "Use HTTP/2 over cleartext")
		cmd.Flags().BoolVar(&outputJSON, "output-json", false, "Output as JSON")
	}
}

func newClient() *client.Client {
	var opts []client.Option
	if useH2C {
		opts = append(opts, client.WithH2C())
	}
	return client.New(cfg.ServerURL, opts...)
}

// parseDurationArg accepts a Go duration ("1m30s") or a bare integer
// count of milliseconds.
func parseDurationArg(name, s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms > store.MaxDurationMs || ms < -store.MaxDurationMs {
			return 0, fmt.Errorf("invalid %s %q: too many milliseconds", name, s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: want milliseconds or a duration like 30s", name, s)
	}
	return d, nil
}

func parseIntArg(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: want an integer", name, s)
	}
	return n, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <queue> <payload> <priority> <ttr> <delay>",
	Short: "Add a job to a queue",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		prio, err := parseIntArg("priority", args[2])
		if err != nil {
			return err
		}
		ttr, err := parseDurationArg("ttr", args[3])
		if err != nil {
			return err
		}
		delay, err := parseDurationArg("delay", args[4])
		if err != nil {
			return err
		}
		id, err := newClient().Enqueue(cmd.Context(), args[0], []byte(args[1]),
			client.WithPriority(prio), client.WithTTR(ttr), client.WithDelay(delay))
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"id": id})
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var dequeueCmd = &cobra.Command{
	Use:   "dequeue <queue>",
	Short: "Reserve the next ready job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().Dequeue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if job == nil && !outputJSON {
			fmt.Fprintln(cmd.OutOrStdout(), "no job")
			return nil
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a job in any state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newClient().Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printCount(cmd, "removed", n)
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release <id> <priority> <delay>",
	Short: "Return a reserved job to its queue",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		prio, err := parseIntArg("priority", args[1])
		if err != nil {
			return err
		}
		delay, err := parseDurationArg("delay", args[2])
		if err != nil {
			return err
		}
		if err := newClient().Release(cmd.Context(), args[0], prio, delay); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s released\n", args[0])
		return nil
	},
}

var buryCmd = &cobra.Command{
	Use:   "bury <id> <reason>",
	Short: "Park a job until it is kicked",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Bury(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s buried\n", args[0])
		return nil
	},
}

var kickCmd = &cobra.Command{
	Use:   "kick <queue> <n>",
	Short: "Move up to n buried jobs back to ready",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseIntArg("n", args[1])
		if err != nil {
			return err
		}
		kicked, err := newClient().Kick(cmd.Context(), args[0], int(n))
		if err != nil {
			return err
		}
		return printCount(cmd, "kicked", kicked)
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe (--all | <queue>)",
	Short: "Remove every job in one queue or in all queues",
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
			return err
		}
		if wipeAll == (len(args) == 1) {
			return fmt.Errorf("wipe takes either --all or a queue name")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		var (
			n   int
			err error
		)
		if wipeAll {
			n, err = c.WipeAll(cmd.Context())
		} else {
			n, err = c.WipeQueue(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}
		return printCount(cmd, "removed", n)
	},
}

var peekCmd = &cobra.Command{
	Use:   "peek <id>",
	Short: "Show a job without changing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <queue>",
	Short: "Show per-state job counts for a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().Stats(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printQueueTable(cmd.OutOrStdout(), []client.QueueStats{*st})
		return nil
	},
}

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "List all queues with stats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		qs, err := newClient().ListQueues(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), qs)
		}
		printQueueTable(cmd.OutOrStdout(), qs)
		return nil
	},
}

func printCount(cmd *cobra.Command, key string, n int) error {
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), map[string]int{key: n})
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

func printQueueTable(out io.Writer, qs []client.QueueStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tDELAYED\tREADY\tRESERVED\tBURIED\tTOTAL")
	for _, q := range qs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", q.Queue, q.Delayed, q.Ready, q.Reserved, q.Buried, q.Total)
	}
	w.Flush()
}

func init() {
	wipeCmd.Flags().BoolVar(&wipeAll, "all", false, "Wipe every queue")

	clientCmds := []*cobra.Command{
		enqueueCmd, dequeueCmd, deleteCmd, releaseCmd, buryCmd,
		kickCmd, wipeCmd, peekCmd, statsCmd, queuesCmd,
	}
	addClientFlags(clientCmds...)
	rootCmd.AddCommand(clientCmds...)
}
