package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkoosis/testrig/internal/detect"
	"github.com/dkoosis/testrig/internal/metrics"
	"github.com/dkoosis/testrig/pkg/report"
)

func newRenderCmd() *cobra.Command {
	var (
		compare   string
		tolerance float64
	)
	cmd := &cobra.Command{
		Use:   "render REPORT",
		Short: "Re-render a saved JSON or YAML report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rep, err := readReport(args[0])
			if err != nil {
				return usageError(err)
			}
			out := cmd.OutOrStdout()
			if err := writeReport(out, rep, cfg.Output.Format, themeFor(cfg), widthFor(cfg, out)); err != nil {
				return usageError(err)
			}

			if compare != "" {
				prev, err := readReport(compare)
				if err != nil {
					return usageError(err)
				}
				regs := metrics.Regressions(prev.Benchmarks, rep.Benchmarks, tolerance)
				fmt.Fprintf(cmd.ErrOrStderr(), "%d benchmark regression(s) against %s\n", len(regs), compare)
				for _, r := range regs {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", r)
				}
				if cfg.Metrics.Textfile != "" {
					rec := metrics.NewRecorder()
					rec.ObserveBenchmarks(rep.Benchmarks)
					rec.ObserveRegressions(regs)
					if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
						return &exitError{code: 2, err: err}
					}
				}
				if len(regs) > 0 {
					return &exitError{code: 1}
				}
			}
			if code := rep.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringP("format", "f", "terminal", "output format: terminal, markdown, json, yaml")
	f.String("theme", "default", "terminal theme: default, orca, mono")
	f.Int("width", 0, "render width (default terminal width)")
	f.StringVar(&compare, "compare", "", "previous report to check benchmarks against")
	f.String("metrics-textfile", "", "with --compare, write benchmark and regression metrics here")
	f.Float64Var(&tolerance, "tolerance", metrics.DefaultTolerance, "ops/sec drop tolerated before a regression is reported")
	return cmd
}

func readReport(path string) (*report.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep *report.Report
	switch detect.Sniff(data) {
	case detect.JSON:
		rep, err = report.DecodeJSON(bytes.NewReader(data))
	case detect.YAML:
		rep, err = report.DecodeYAML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%s: not a testrig report (expected JSON or YAML)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}
