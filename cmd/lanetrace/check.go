package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lanetrace/internal/scenario"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <scenario.toml>...",
		Short: "Validate scenarios without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var bad int
			for _, path := range args {
				sc, err := scenario.Load(path)
				if err != nil {
					bad++
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					continue
				}
				steps := 0
				for _, t := range sc.Tasks {
					steps += len(t.Steps)
				}
				fmt.Fprintf(out, "ok %s: %d task(s), %d step(s)\n", sc.Name, len(sc.Tasks), steps)
			}
			if bad > 0 {
				return fmt.Errorf("%d invalid scenario(s)", bad)
			}
			return nil
		},
	}
}
