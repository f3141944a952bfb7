// Package report holds the results of a run: per-instance test results,
// aggregated counts, and benchmark group results. The JSON shape
// (summary, results, benchmarks[].results[].stats) is stable across the
// terminal, Markdown, JSON and YAML exports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dkoosis/testrig/pkg/bench"
)

// Status is the outcome of one test instance.
type Status string

const (
	Passed  Status = "passed"
	Failed  Status = "failed"
	Errored Status = "errored"
	Skipped Status = "skipped"
)

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case Passed, Failed, Errored, Skipped:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// UnmarshalText rejects unknown statuses so a hand-edited report fails loudly.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// OK reports whether s does not fail a run.
func (s Status) OK() bool { return s == Passed || s == Skipped }

// Failure describes why an instance did not pass. Type is the Go type of the
// first offending error (e.g. "*runner.AssertionError").
type Failure struct {
	Message string `json:"message" yaml:"message"`
	Type    string `json:"type" yaml:"type"`
	Phase   string `json:"phase,omitempty" yaml:"phase,omitempty"`
}

// TestResult is the outcome of one test instance.
type TestResult struct {
	Name     string            `json:"name" yaml:"name"`
	Suite    string            `json:"suite" yaml:"suite"`
	Status   Status            `json:"status" yaml:"status"`
	Duration time.Duration     `json:"duration_ns" yaml:"duration_ns"`
	Failure  *Failure          `json:"failure,omitempty" yaml:"failure,omitempty"`
	Errors   []Failure         `json:"errors,omitempty" yaml:"errors,omitempty"`
	Output   []string          `json:"output,omitempty" yaml:"output,omitempty"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Tags     []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Summary aggregates result counts.
type Summary struct {
	Total      int           `json:"total" yaml:"total"`
	Passed     int           `json:"passed" yaml:"passed"`
	Failed     int           `json:"failed" yaml:"failed"`
	Skipped    int           `json:"skipped" yaml:"skipped"`
	Errors     int           `json:"errors" yaml:"errors"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Report is the full record of one run. Add is safe for concurrent use.
type Report struct {
	RunID      string              `json:"run_id" yaml:"run_id"`
	Summary    Summary             `json:"summary" yaml:"summary"`
	Results    []TestResult        `json:"results" yaml:"results"`
	Benchmarks []bench.GroupResult `json:"benchmarks,omitempty" yaml:"benchmarks,omitempty"`

	mu sync.Mutex
}

// New starts a report stamped with a fresh run id.
func New(startedAt time.Time) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Summary: Summary{StartedAt: startedAt},
		Results: []TestResult{},
	}
}

// Add appends r and updates the counts.
func (rep *Report) Add(r TestResult) {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	rep.Results = append(rep.Results, r)
	rep.Summary.Total++
	switch r.Status {
	case Passed:
		rep.Summary.Passed++
	case Failed:
		rep.Summary.Failed++
	case Errored:
		rep.Summary.Errors++
	case Skipped:
		rep.Summary.Skipped++
	}
}

// AddBenchmark appends a benchmark group result.
func (rep *Report) AddBenchmark(g bench.GroupResult) {
	rep.mu.Lock()
	rep.Benchmarks = append(rep.Benchmarks, g)
	rep.mu.Unlock()
}

// Finish stamps the end of the run.
func (rep *Report) Finish(finishedAt time.Time) {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	rep.Summary.FinishedAt = finishedAt
	if !rep.Summary.StartedAt.IsZero() {
		rep.Summary.Duration = finishedAt.Sub(rep.Summary.StartedAt)
	}
}

// OK reports whether nothing failed or errored, benchmarks included.
func (rep *Report) OK() bool {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	if rep.Summary.Failed > 0 || rep.Summary.Errors > 0 {
		return false
	}
	for i := range rep.Benchmarks {
		if rep.Benchmarks[i].Failed() {
			return false
		}
	}
	return true
}

// ExitCode is 0 when OK and 1 otherwise.
func (rep *Report) ExitCode() int {
	if rep.OK() {
		return 0
	}
	return 1
}

// Find returns the result with the given instance name.
func (rep *Report) Find(name string) (TestResult, bool) {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	for _, r := range rep.Results {
		if r.Name == name {
			return r, true
		}
	}
	return TestResult{}, false
}

// EncodeJSON writes rep as indented JSON.
func EncodeJSON(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// DecodeJSON reads a report written by EncodeJSON.
func DecodeJSON(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

// EncodeYAML writes rep as YAML using the same field names as the JSON form.
func EncodeYAML(w io.Writer, rep *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// DecodeYAML reads a report written by EncodeYAML.
func DecodeYAML(r io.Reader) (*Report, error) {
	var rep Report
	if err := yaml.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}
