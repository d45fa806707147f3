package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lanetrace/internal/version"
)

func newVersionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show lanetrace build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current()
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "pretty":
				fmt.Fprintf(out, "lanetrace %s\n", version.Pretty())
				fmt.Fprintf(out, "commit: %s\n", valueOrUnknown(info.GitCommit))
				fmt.Fprintf(out, "built:  %s\n", valueOrUnknown(info.BuildDate))
				fmt.Fprintf(out, "go:     %s\n", info.GoVersion)
				return nil
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			default:
				return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "pretty", "output format (pretty|json)")
	return cmd
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
