package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/minidock/minidock/pkg/state"
)

func newPsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ps",
		Aliases: []string{"list"},
		Short:   "List containers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.rt.List()
			if err != nil {
				return err
			}
			mem := make(map[string]uint64)
			for _, r := range recs {
				if r.Status != state.Running {
					continue
				}
				if n, err := a.rt.MemoryUsage(r); err == nil {
					mem[r.Name] = n
				}
			}
			return writeRecords(cmd.OutOrStdout(), recs, mem, time.Now())
		},
	}
}

// writeRecords prints recs as a table, mem holds the memory usage of the
// containers it could be read for
func writeRecords(w io.Writer, recs []*state.Record, mem map[string]uint64, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPID\tSTATUS\tCOMMAND\tCREATED\tMEMORY")
	for _, r := range recs {
		created := r.CreatedAt
		if t := r.CreatedTime(); !t.IsZero() {
			created = units.HumanDuration(now.Sub(t)) + " ago"
		}
		status := string(r.Status)
		if r.Status == state.Exited {
			status = fmt.Sprintf("%s (%d)", r.Status, r.ExitCode)
		}
		usage := "-"
		if n, ok := mem[r.Name]; ok {
			usage = units.BytesSize(float64(n))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.PID, status, r.Command, created, usage)
	}
	return tw.Flush()
}
