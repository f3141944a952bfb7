package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/testrig/internal/logging"
	"github.com/dkoosis/testrig/pkg/gotest"
)

func newImportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Convert go test -json output into a testrig report",
		Long: `Reads go test -json output from FILE, or stdin when FILE is "-" or
omitted, and renders it like a testrig run:

  go test -json ./... | testrig import --format markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = logging.Sync(log) }()

			var in io.Reader = cmd.InOrStdin()
			name := "stdin"
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return usageError(err)
				}
				defer f.Close()
				in, name = f, args[0]
			}

			rep, malformed, err := gotest.Import(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("import %s: %w", name, err)
			}
			if malformed > 0 {
				log.Warn("skipped non-JSON lines", zap.String("input", name), zap.Int("lines", malformed))
			}
			log.Info("imported go test run",
				zap.String("run_id", rep.RunID), zap.Int("total", rep.Summary.Total))

			stdout := cmd.OutOrStdout()
			if err := writeReport(stdout, rep, cfg.Output.Format, themeFor(cfg), widthFor(cfg, stdout)); err != nil {
				return usageError(err)
			}
			if out != "" {
				if err := saveReport(out, rep, widthFor(cfg, stdout)); err != nil {
					return err
				}
			}
			if code := rep.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "also save the report (format from extension)")
	f.StringP("format", "f", "terminal", "output format: terminal, markdown, json, yaml")
	f.String("theme", "default", "terminal theme: default, orca, mono")
	f.Int("width", 0, "render width (default terminal width)")
	f.String("log-level", "warn", "log level: debug, info, warn, error")
	return cmd
}
