package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lanetrace/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lanetrace",
		Short:         "Hierarchical trace output for interleaved tasks",
		Long:          `lanetrace runs scripted cooperative tasks and renders their nested scopes on stable lanes`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVersionCmd())

	flags := root.PersistentFlags()
	flags.String("config", "", "path to lanetrace.toml (default: nearest in the directory chain)")
	flags.String("verbosity", "", "trace verbosity (regular|verbose|warnings)")
	flags.String("format", "", "trace format (text|ndjson)")
	flags.String("glyphs", "", "lane glyphs (unicode|ascii)")
	flags.Int("channel-width", 0, "lane channel slots, 0 hides the channel")
	flags.String("color", "", "colorize output (auto|on|off)")
	flags.String("log-level", "warn", "diagnostic log level (debug|info|warn|error)")
	flags.Bool("timings", false, "print per-scope timings to stderr")
	flags.Bool("metrics", false, "print Prometheus metrics to stderr")
	return root
}

// main executes the root command and exits with status 1 on error.
func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("error:", err)
		os.Exit(1)
	}
}

// isTerminal reports whether f is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
