// Package gotest imports the NDJSON event stream of "go test -json" into a
// report.Report, so plain Go test runs render and compare like testrig runs.
//
// Each top-level or sub-test becomes one result whose Suite is the package
// path. A package that fails without running any test (a build failure or
// a panic in TestMain) becomes a single errored result named after the
// package.
package gotest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dkoosis/testrig/pkg/report"
)

// Event is one line of go test -json output.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

const maxLine = 1024 * 1024

// Stream decodes events from r and calls fn for each. Lines that are not
// JSON (build output interleaved by go test) are counted and skipped.
// The scanner runs in its own goroutine; on cancellation Stream closes r
// when it is an io.Closer so that goroutine can exit.
func Stream(ctx context.Context, r io.Reader, fn func(Event)) (malformed int, err error) {
	type line struct {
		b   []byte
		err error
	}
	lines := make(chan line)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			b := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line{b: b}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case lines <- line{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			return malformed, ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return malformed, nil
			}
			if l.err != nil {
				return malformed, fmt.Errorf("scanning test output: %w", l.err)
			}
			if len(strings.TrimSpace(string(l.b))) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(l.b, &ev); err != nil || ev.Action == "" {
				malformed++
				continue
			}
			fn(ev)
		}
	}
}

// Import reads a complete go test -json stream and returns the report
// along with the number of skipped malformed lines.
func Import(ctx context.Context, r io.Reader) (*report.Report, int, error) {
	imp := NewImporter()
	malformed, err := Stream(ctx, r, imp.Add)
	if err != nil {
		return nil, malformed, err
	}
	return imp.Report(), malformed, nil
}

// Importer accumulates events. It is not safe for concurrent use.
type Importer struct {
	packages map[string]*pkgState
	order    []string
	first    time.Time
	last     time.Time
}

type pkgState struct {
	name    string
	tests   map[string]*testState
	order   []string
	output  []string
	ran     bool
	failed  bool
	elapsed time.Duration
}

type testState struct {
	name     string
	action   string
	elapsed  time.Duration
	output   []string
	panicked bool
}

// NewImporter returns an empty Importer.
func NewImporter() *Importer {
	return &Importer{packages: make(map[string]*pkgState)}
}

func (imp *Importer) pkg(name string) *pkgState {
	if p, ok := imp.packages[name]; ok {
		return p
	}
	p := &pkgState{name: name, tests: make(map[string]*testState)}
	imp.packages[name] = p
	imp.order = append(imp.order, name)
	return p
}

func (p *pkgState) test(name string) *testState {
	if t, ok := p.tests[name]; ok {
		return t
	}
	t := &testState{name: name}
	p.tests[name] = t
	p.order = append(p.order, name)
	p.ran = true
	return t
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

// Add folds one event into the import.
func (imp *Importer) Add(ev Event) {
	if !ev.Time.IsZero() {
		if imp.first.IsZero() || ev.Time.Before(imp.first) {
			imp.first = ev.Time
		}
		if ev.Time.After(imp.last) {
			imp.last = ev.Time
		}
	}
	p := imp.pkg(ev.Package)

	switch ev.Action {
	case "run":
		if ev.Test != "" {
			p.test(ev.Test)
		}
	case "output":
		out := strings.TrimRight(ev.Output, "\n")
		if out == "" || isFrame(out) {
			return
		}
		if ev.Test == "" {
			p.output = append(p.output, out)
			return
		}
		t := p.test(ev.Test)
		t.output = append(t.output, out)
		if strings.HasPrefix(strings.TrimSpace(out), "panic:") {
			t.panicked = true
		}
	case "pass", "fail", "skip":
		if ev.Test == "" {
			p.failed = ev.Action == "fail"
			p.elapsed = seconds(ev.Elapsed)
			return
		}
		t := p.test(ev.Test)
		t.action = ev.Action
		t.elapsed = seconds(ev.Elapsed)
	}
}

// isFrame reports whether out is go test's own framing rather than test
// output: the "=== RUN" and "--- PASS" lines and the trailing "ok"/"FAIL"
// package summary.
func isFrame(out string) bool {
	s := strings.TrimSpace(out)
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS", "--- FAIL", "--- SKIP"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	// Package summaries are never indented; test log lines always are.
	return out == "PASS" || out == "FAIL" || strings.HasPrefix(out, "ok  \t") ||
		strings.HasPrefix(out, "FAIL\t")
}

// Report builds the report from the events seen so far. Tests that started
// but never finished (the binary crashed or timed out) are errored.
func (imp *Importer) Report() *report.Report {
	rep := report.New(imp.first)
	for _, name := range imp.order {
		p := imp.packages[name]
		if !p.ran {
			if p.failed {
				rep.Add(report.TestResult{
					Name:     p.name,
					Suite:    p.name,
					Status:   report.Errored,
					Duration: p.elapsed,
					Failure:  &report.Failure{Message: firstLine(p.output, "package failed"), Type: "package", Phase: "build"},
					Output:   p.output,
				})
			}
			continue
		}
		for _, tn := range p.order {
			rep.Add(p.result(p.tests[tn]))
		}
	}
	rep.Finish(imp.last)
	return rep
}

func (p *pkgState) result(t *testState) report.TestResult {
	r := report.TestResult{
		Name:     t.name,
		Suite:    p.name,
		Duration: t.elapsed,
		Output:   t.output,
	}
	switch {
	case t.panicked:
		r.Status = report.Errored
		r.Failure = &report.Failure{Message: panicMessage(t.output), Type: "panic", Phase: "call"}
	case t.action == "pass":
		r.Status = report.Passed
	case t.action == "skip":
		r.Status = report.Skipped
		r.Failure = &report.Failure{Message: firstLine(t.output, "skipped"), Type: "skip"}
	case t.action == "fail":
		r.Status = report.Failed
		r.Failure = &report.Failure{Message: firstLine(t.output, "test failed"), Type: "failure", Phase: "call"}
	default:
		r.Status = report.Errored
		r.Failure = &report.Failure{Message: "test did not finish", Type: "incomplete", Phase: "call"}
	}
	return r
}

func firstLine(lines []string, fallback string) string {
	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" {
			return s
		}
	}
	return fallback
}

func panicMessage(lines []string) string {
	for _, l := range lines {
		if s := strings.TrimSpace(l); strings.HasPrefix(s, "panic:") {
			return s
		}
	}
	return "panic"
}
