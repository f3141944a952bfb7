package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/testrig/internal/config"
	"github.com/dkoosis/testrig/internal/logging"
	"github.com/dkoosis/testrig/internal/metrics"
	"github.com/dkoosis/testrig/pkg/bench"
	"github.com/dkoosis/testrig/pkg/fixture"
	"github.com/dkoosis/testrig/pkg/live"
	"github.com/dkoosis/testrig/pkg/report"
	"github.com/dkoosis/testrig/pkg/runner"
	"github.com/dkoosis/testrig/pkg/suite"
)

type exampleFlags struct {
	out          string
	withFailures bool
	noBench      bool
}

func newExampleCmd() *cobra.Command {
	var opts exampleFlags
	cmd := &cobra.Command{
		Use:   "example",
		Short: "Run the built-in demo suites and benchmarks",
		Long: `Runs demo suites exercising every fixture scope, parametrization, hooks
and an in-process HTTP server, then a benchmark group, and renders the report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runExample(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "", "also write the report to a file (.json, .md, .yaml or text)")
	f.BoolVar(&opts.withFailures, "with-failures", false, "include failing and erroring demo tests")
	f.BoolVar(&opts.noBench, "no-bench", false, "skip the benchmark groups")
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("format", "f", "terminal", "output format: terminal, markdown, json, yaml")
	f.String("theme", "default", "terminal theme: default, orca, mono")
	f.Int("width", 0, "render width (default terminal width)")
	f.String("log-level", "warn", "log level: debug, info, warn, error")
	f.String("log-format", "console", "log format: console, json")
	f.Int("rounds", bench.DefaultRounds, "benchmark rounds")
	f.Int("warmup", 1, "benchmark warmup rounds")
	f.Int("iterations", bench.DefaultIterations, "benchmark iterations per round")
	f.Bool("filter-outliers", false, "drop IQR outliers from benchmark samples")
	f.StringSlice("match", nil, "only run tests whose Suite/Name matches a regex")
	f.StringSlice("skip", nil, "skip tests whose Suite/Name matches a regex")
	f.StringSlice("tags", nil, "only run tests with one of these tags")
	f.StringSlice("exclude-tags", nil, "skip tests with any of these tags")
	f.Bool("fail-fast", false, "skip remaining tests after the first failure")
	f.Bool("no-tui", false, "disable the interactive progress view")
	f.String("metrics-textfile", "", "write prometheus metrics to this file")
}

func filtersFor(cfg *config.Config) (runner.Filter, error) {
	var rx runner.RegexFilters
	for _, p := range cfg.Run.Match {
		if err := rx.MustMatch.Set(p); err != nil {
			return nil, usageError(fmt.Errorf("--match %q: %w", p, err))
		}
	}
	for _, p := range cfg.Run.Skip {
		if err := rx.MustNotMatch.Set(p); err != nil {
			return nil, usageError(fmt.Errorf("--skip %q: %w", p, err))
		}
	}
	tags := runner.TagFilter{Include: cfg.Run.Tags, Exclude: cfg.Run.ExcludeTags}
	return runner.AllOf(rx.AsFilter, tags.AsFilter), nil
}

func runExample(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, opts exampleFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	log, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(log) }()
	filter, err := filtersFor(cfg)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	reg := fixture.NewRegistry()
	registerExampleFixtures(reg)
	suites := exampleSuites(opts.withFailures)

	interactive := cfg.Output.Interactive && cfg.Output.Format == "terminal" && isTTYWriter(stdout)
	// Progress goes to stdout only when stdout carries the terminal view.
	progress := stderr
	if cfg.Output.Format == "terminal" {
		progress = stdout
	}

	runnerOpts := []runner.Option{
		runner.WithLogger(log),
		runner.WithFilter(filter),
		runner.WithFailFast(cfg.Run.FailFast),
		runner.WithObserver(recorder),
	}
	var (
		rep     *report.Report
		console *live.Console
	)
	if interactive {
		rep, err = runInteractive(ctx, stdout, cfg, reg, suites, runnerOpts)
	} else {
		console = live.NewConsole(progress, live.WithColor(cfg.Output.Theme != "mono" && isTTYWriter(progress)),
			live.WithOutputOnFailure(cfg.Log.Level == "debug"))
		rep, err = runner.New(reg, append(runnerOpts, runner.WithObserver(console))...).Run(ctx, suites...)
	}
	if rep == nil {
		if errors.Is(err, runner.ErrConfiguration) {
			return usageError(err)
		}
		return &exitError{code: 1, err: err}
	}
	if err != nil {
		fmt.Fprintf(stderr, "testrig: %v\n", err)
	}

	if !opts.noBench && ctx.Err() == nil {
		groups, err := runExampleBenchmarks(ctx, cfg, log)
		for _, g := range groups {
			rep.AddBenchmark(g)
		}
		if err != nil {
			fmt.Fprintf(stderr, "testrig: benchmarks: %v\n", err)
		}
		rep.Finish(time.Now())
		recorder.ObserveBenchmarks(groups)
	}

	if console != nil && progress != stdout {
		console.Summary(rep)
	}
	if err := writeReport(stdout, rep, cfg.Output.Format, themeFor(cfg), widthFor(cfg, stdout)); err != nil {
		return &exitError{code: 2, err: err}
	}
	if opts.out != "" {
		if err := saveReport(opts.out, rep, widthFor(cfg, stdout)); err != nil {
			return &exitError{code: 2, err: err}
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return &exitError{code: 2, err: err}
		}
	}
	if code := rep.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func runInteractive(ctx context.Context, stdout io.Writer, cfg *config.Config, reg *fixture.Registry,
	suites []*suite.Suite, opts []runner.Option) (*report.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := live.NewEvents(64)
	r := runner.New(reg, append(opts, runner.WithObserver(events))...)

	var (
		rep    *report.Report
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer events.Close()
		rep, runErr = r.Run(ctx, suites...)
	}()

	m, err := live.RunProgram(ctx, events, themeFor(cfg), tea.WithOutput(stdout))
	if err != nil || m.Interrupted() {
		cancel()
	}
	<-done
	return rep, runErr
}

func runExampleBenchmarks(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]bench.GroupResult, error) {
	reg := bench.NewRegistry()
	for _, g := range exampleBenchmarks() {
		if err := reg.Register(g); err != nil {
			return nil, err
		}
	}
	return reg.RunAll(ctx, bench.Options{
		Rounds:         cfg.Bench.Rounds,
		Warmup:         cfg.Bench.Warmup,
		Iterations:     cfg.Bench.Iterations,
		FilterOutliers: cfg.Bench.FilterOutliers,
		Logger:         log,
	})
}
