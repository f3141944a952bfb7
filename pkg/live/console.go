// Package live reports test progress while a run is in flight: a line
// oriented console for CI logs and pipes, and an interactive terminal view.
// Both are runner.Observers.
package live

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/dkoosis/testrig/pkg/report"
	"github.com/dkoosis/testrig/pkg/runner"
)

// Console prints one line per finished test, with failure details indented
// beneath it.
type Console struct {
	w               io.Writer
	verbose         bool
	outputOnFailure bool

	mu     sync.Mutex
	counts map[report.Status]int

	pass, fail, errc, skip, muted, bold *color.Color
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithColor forces color on or off. By default color follows NO_COLOR and
// whether stdout is a terminal.
func WithColor(enabled bool) ConsoleOption {
	return func(c *Console) {
		for _, col := range c.colors() {
			if enabled {
				col.EnableColor()
			} else {
				col.DisableColor()
			}
		}
	}
}

// WithVerbose also prints a line when each test starts.
func WithVerbose(v bool) ConsoleOption {
	return func(c *Console) { c.verbose = v }
}

// WithOutputOnFailure dumps a failed test's captured log lines.
func WithOutputOnFailure(v bool) ConsoleOption {
	return func(c *Console) { c.outputOnFailure = v }
}

// NewConsole writes progress to w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		w:      w,
		counts: make(map[report.Status]int),
		pass:   color.New(color.FgGreen),
		fail:   color.New(color.FgRed, color.Bold),
		errc:   color.New(color.FgMagenta, color.Bold),
		skip:   color.New(color.FgYellow),
		muted:  color.New(color.FgHiBlack),
		bold:   color.New(color.Bold),
	}
	if os.Getenv("NO_COLOR") != "" {
		WithColor(false)(c)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Console) colors() []*color.Color {
	return []*color.Color{c.pass, c.fail, c.errc, c.skip, c.muted, c.bold}
}

var _ runner.Observer = (*Console)(nil)

func (c *Console) SuiteStarted(suite string, instances int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bold.Fprintf(c.w, "=== %s", suite)
	c.muted.Fprintf(c.w, " (%d %s)\n", instances, plural(instances, "test", "tests"))
}

func (c *Console) TestStarted(id runner.TestID) {
	if !c.verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted.Fprintf(c.w, "  RUN   %s\n", id.Name)
}

func (c *Console) TestFinished(r report.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[r.Status]++

	label, col := c.label(r.Status)
	fmt.Fprint(c.w, "  ")
	col.Fprint(c.w, label)
	fmt.Fprintf(c.w, " %s", r.Name)
	if r.Status != report.Skipped {
		c.muted.Fprintf(c.w, " (%s)", formatDuration(r.Duration))
	}
	fmt.Fprintln(c.w)

	switch {
	case r.Status == report.Skipped && r.Failure != nil && r.Failure.Message != "":
		c.muted.Fprintf(c.w, "        %s\n", r.Failure.Message)
	case r.Failure != nil:
		c.writeFailure(*r.Failure)
	}
	for _, f := range r.Errors {
		c.writeFailure(f)
	}
	if c.outputOnFailure && !r.Status.OK() {
		for _, line := range r.Output {
			c.muted.Fprintf(c.w, "    | %s\n", line)
		}
	}
}

func (c *Console) writeFailure(f report.Failure) {
	head := f.Type
	if f.Phase != "" {
		head += " in " + f.Phase
	}
	c.muted.Fprintf(c.w, "        %s:\n", head)
	for _, line := range strings.Split(strings.TrimRight(f.Message, "\n"), "\n") {
		fmt.Fprintf(c.w, "          %s\n", line)
	}
}

func (c *Console) SuiteFinished(string) {}

// Summary prints the closing totals for rep.
func (c *Console) Summary(rep *report.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := rep.Summary
	fmt.Fprintln(c.w)
	parts := []string{
		c.pass.Sprintf("%d passed", s.Passed),
		c.fail.Sprintf("%d failed", s.Failed),
		c.errc.Sprintf("%d errors", s.Errors),
		c.skip.Sprintf("%d skipped", s.Skipped),
	}
	verdict := c.pass.Sprint("PASS")
	if !rep.OK() {
		verdict = c.fail.Sprint("FAIL")
	}
	fmt.Fprintf(c.w, "%s %d %s: %s in %s\n", verdict, s.Total, plural(s.Total, "test", "tests"),
		strings.Join(parts, ", "), formatDuration(s.Duration))
}

// Counts returns how many results of each status have been printed.
func (c *Console) Counts() map[report.Status]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[report.Status]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c *Console) label(s report.Status) (string, *color.Color) {
	switch s {
	case report.Passed:
		return "PASS ", c.pass
	case report.Failed:
		return "FAIL ", c.fail
	case report.Errored:
		return "ERROR", c.errc
	default:
		return "SKIP ", c.skip
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Round(100*time.Millisecond).Seconds())
}
