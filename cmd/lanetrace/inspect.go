package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lanetrace/internal/trace"
)

func newInspectCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Print the lanes recorded in a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = strings.TrimPrefix(filepath.Ext(args[0]), ".")
			}
			f, err := trace.ParseSnapshotFormat(format)
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open snapshot: %w", err)
			}
			defer file.Close()
			snap, err := trace.DecodeSnapshot(file, f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "taken %s, verbosity %s", snap.Taken.Format(trace.DefaultTimeLayout), snap.Verbosity)
			if snap.CurrentName != "" {
				fmt.Fprintf(out, ", current %s#%d", snap.CurrentName, snap.CurrentID)
			}
			fmt.Fprintln(out)
			if len(snap.Lanes) == 0 {
				fmt.Fprintln(out, "no live lanes")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LANE\tSCOPE\tDOMAIN\tSTATE\tSTARTED\tTAGS")
			for _, l := range snap.Lanes {
				fmt.Fprintf(tw, "%d\t%s#%d\t%s\t%s\t%t\t%s\n",
					l.Lane, l.Name, l.ScopeID, l.Domain, l.State, l.Started, strings.Join(l.Tags, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "snapshot encoding (json|msgpack, default from extension)")
	return cmd
}
