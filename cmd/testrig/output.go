package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dkoosis/testrig/internal/config"
	"github.com/dkoosis/testrig/internal/logging"
	"github.com/dkoosis/testrig/pkg/render"
	"github.com/dkoosis/testrig/pkg/report"
)

// isTTYWriter reports whether w is a terminal.
func isTTYWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// termWidth returns the terminal width of w, defaulting to 80.
func termWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			return tw
		}
	}
	return 80
}

// flagKeys maps command-line flags onto config keys. A flag overrides the
// config only when the user set it.
var flagKeys = map[string]string{
	"format":           "output.format",
	"theme":            "output.theme",
	"width":            "output.width",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"rounds":           "bench.rounds",
	"warmup":           "bench.warmup",
	"iterations":       "bench.iterations",
	"filter-outliers":  "bench.filter_outliers",
	"match":            "run.match",
	"skip":             "run.skip",
	"tags":             "run.tags",
	"exclude-tags":     "run.exclude_tags",
	"fail-fast":        "run.fail_fast",
	"metrics-textfile": "metrics.textfile",
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "stringSlice":
			v, _ := cmd.Flags().GetStringSlice(name)
			overrides[key] = v
		default:
			overrides[key] = f.Value.String()
		}
	}
	if f := cmd.Flags().Lookup("no-tui"); f != nil && f.Changed {
		overrides["output.interactive"] = f.Value.String() != "true"
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, overrides)
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*zap.Logger, error) {
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: w})
	if err != nil {
		return nil, usageError(err)
	}
	return log, nil
}

// formatForPath picks the output format from a file extension.
func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".md", ".markdown":
		return render.FormatMarkdown
	case ".yaml", ".yml":
		return "yaml"
	default:
		return render.FormatTerminal
	}
}

// writeReport writes rep in format. json and yaml are the full report, which
// "testrig render" can read back; the other formats are rendered views.
func writeReport(w io.Writer, rep *report.Report, format string, theme render.Theme, width int) error {
	switch format {
	case "json":
		return report.EncodeJSON(w, rep)
	case "yaml":
		return report.EncodeYAML(w, rep)
	}
	r, err := render.ByName(format, theme, width)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, render.Report(r, rep))
	return err
}

// saveReport writes rep to path, choosing the format by extension. Text
// files get the mono theme.
func saveReport(path string, rep *report.Report, width int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeReport(f, rep, formatForPath(path), render.MonoTheme(), width); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func themeFor(cfg *config.Config) render.Theme {
	return render.ThemeByName(cfg.Output.Theme)
}

func widthFor(cfg *config.Config, w io.Writer) int {
	if cfg.Output.Width > 0 {
		return cfg.Output.Width
	}
	return termWidth(w)
}
