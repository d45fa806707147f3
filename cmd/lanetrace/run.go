package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lanetrace/internal/asyncrt"
	"lanetrace/internal/observ"
	"lanetrace/internal/prof"
	"lanetrace/internal/scenario"
	"lanetrace/internal/trace"
)

type runOptions struct {
	jobs           int
	quiet          bool
	fuzz           bool
	seed           uint64
	realTime       bool
	stallAfter     time.Duration
	snapshotDir    string
	snapshotFormat string
	cpuProfile     string
	memProfile     string
}

type runOutcome struct {
	sc  *scenario.Scenario
	out bytes.Buffer
	res scenario.Result
	err error
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <scenario.toml>...",
		Short: "Run scenarios and print their traces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, args, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "scenarios to run in parallel")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "keep traces in memory and print them only for failed scenarios")
	cmd.Flags().BoolVar(&opts.fuzz, "fuzz", false, "pick ready tasks in random order")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "fuzz scheduler seed (default from config)")
	cmd.Flags().BoolVar(&opts.realTime, "real-time", false, "sleep on the wall clock instead of virtual time")
	cmd.Flags().DurationVar(&opts.stallAfter, "stall-after", 0, "report interrupted lanes idle this long on deadlock")
	cmd.Flags().StringVar(&opts.snapshotDir, "snapshot-dir", "", "write a lane snapshot per scenario into this directory")
	cmd.Flags().StringVar(&opts.snapshotFormat, "snapshot-format", "json", "snapshot encoding (json|msgpack)")
	cmd.Flags().StringVar(&opts.cpuProfile, "cpu-profile", "", "write a CPU profile to this file")
	cmd.Flags().StringVar(&opts.memProfile, "mem-profile", "", "write a heap profile to this file after the run")
	return cmd
}

func runScenarios(cmd *cobra.Command, args []string, opts runOptions) (err error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	profiles, err := prof.Start(prof.Paths{CPU: opts.cpuProfile, Heap: opts.memProfile})
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := profiles.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()
	flags := cmd.Root().PersistentFlags()
	showTimings, err := flags.GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	showMetrics, err := flags.GetBool("metrics")
	if err != nil {
		return fmt.Errorf("failed to get metrics flag: %w", err)
	}

	exe := s.file.Executor
	if cmd.Flags().Changed("fuzz") {
		exe.Fuzz = opts.fuzz
	}
	if cmd.Flags().Changed("seed") {
		exe.Seed = opts.seed
	}
	if cmd.Flags().Changed("real-time") {
		exe.RealTime = opts.realTime
	}
	if cmd.Flags().Changed("stall-after") {
		exe.StallAfter.Duration = opts.stallAfter
	}

	var snapFormat trace.SnapshotFormat
	if opts.snapshotDir != "" {
		snapFormat, err = trace.ParseSnapshotFormat(opts.snapshotFormat)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(opts.snapshotDir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	tcfg, err := s.file.TraceConfig(writerIsTerminal(stdout))
	if err != nil {
		return err
	}
	if opts.quiet {
		tcfg.Quiet = true
		if tcfg.RingSize == 0 {
			tcfg.RingSize = 256
		}
	}

	outcomes := make([]*runOutcome, len(args))
	for i, path := range args {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}
		outcomes[i] = &runOutcome{sc: sc}
	}

	var metrics *observ.Metrics
	if showMetrics {
		if metrics, err = observ.NewMetrics(); err != nil {
			return err
		}
	}
	timer := observ.NewTimer()
	hooks := func(clock func() time.Time) trace.Hooks {
		h := timer.Hooks(clock)
		if metrics != nil {
			h = trace.MergeHooks(h, metrics.Hooks(clock))
		}
		return h
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(opts.jobs, 1))
	for _, o := range outcomes {
		g.Go(func() error {
			cfg := tcfg
			cfg.Output = &o.out
			o.res, o.err = scenario.Run(ctx, o.sc, scenario.Options{
				Trace:    cfg,
				Executor: exe,
				Hooks:    hooks,
				Logger:   s.logger,
			})
			if errors.Is(o.err, context.Canceled) {
				return o.err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if len(outcomes) > 1 && !opts.quiet {
			fmt.Fprintf(stdout, "== %s ==\n", o.sc.Name)
		}
		if _, err := stdout.Write(o.out.Bytes()); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
		bad := o.err != nil || o.res.Failed()
		if bad {
			failed++
			if opts.quiet && o.res.Ring != nil {
				fmt.Fprintf(stdout, "== %s (last %d lines) ==\n", o.sc.Name, len(o.res.Ring.Snapshot()))
				if err := o.res.Ring.Dump(stdout); err != nil {
					return fmt.Errorf("write trace: %w", err)
				}
			}
			reportFailure(stderr, o)
		}
		if opts.snapshotDir != "" {
			if err := writeSnapshot(opts.snapshotDir, o.sc.Name, o.res.Snapshot, snapFormat); err != nil {
				return err
			}
		}
	}

	if showTimings {
		fmt.Fprint(stderr, timer.Summary())
	}
	if metrics != nil {
		if err := metrics.WriteText(stderr); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenario(s) failed", failed, len(outcomes))
	}
	return nil
}

func reportFailure(w io.Writer, o *runOutcome) {
	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintf(w, "%s %s", red.Sprint("FAIL"), o.sc.Name)
	if o.err != nil {
		fmt.Fprintf(w, ": %v", o.err)
	}
	fmt.Fprintln(w)
	for _, t := range o.res.Tasks {
		switch {
		case t.Err != nil:
			fmt.Fprintf(w, "  %s: %v\n", t.Name, t.Err)
		case t.Result == "cancelled":
			fmt.Fprintf(w, "  %s: cancelled\n", t.Name)
		case t.Status != asyncrt.TaskDone.String() && t.Status != "not started":
			fmt.Fprintf(w, "  %s: %s\n", t.Name, t.Status)
		}
	}
}

func writeSnapshot(dir, name string, snap trace.Snapshot, format trace.SnapshotFormat) error {
	ext := ".json"
	if format == trace.SnapshotMsgpack {
		ext = ".msgpack"
	}
	path := filepath.Join(dir, name+ext)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := trace.EncodeSnapshot(f, snap, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return f.Close()
}
