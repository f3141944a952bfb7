package runner

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// TestID identifies an instance for filtering and observers.
type TestID struct {
	Suite string
	Name  string
	Tags  []string
}

func (id TestID) String() string {
	if id.Suite == "" {
		return id.Name
	}
	return id.Suite + "/" + id.Name
}

// Filter decides whether an instance runs. Instances it rejects are
// reported as skipped.
type Filter func(TestID) bool

// AllOf accepts an instance only when every filter does.
func AllOf(filters ...Filter) Filter {
	return func(id TestID) bool {
		for _, f := range filters {
			if f != nil && !f(id) {
				return false
			}
		}
		return true
	}
}

// RegexFilters selects instances by their full "Suite/Name" id.
type RegexFilters struct {
	MustMatch    RegexList
	MustNotMatch RegexList
}

// AsFilter accepts ids matching any MustMatch pattern (or all ids when none
// are set) and no MustNotMatch pattern.
func (r RegexFilters) AsFilter(id TestID) bool {
	name := id.String()
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(name)) &&
		!r.MustNotMatch.AnyMatch(name)
}

// Describe summarises the active filters, or returns "" when there are none.
func (r RegexFilters) Describe() string {
	var parts []string
	if r.MustMatch.IsDefined() {
		parts = append(parts, "skip any not matching "+r.MustMatch.String())
	}
	if r.MustNotMatch.IsDefined() {
		parts = append(parts, "skip any matching "+r.MustNotMatch.String())
	}
	return strings.Join(parts, "; ")
}

// RegexList is a repeatable command-line flag of regular expressions.
type RegexList struct {
	patterns []*regexp.Regexp
}

func (r RegexList) String() string {
	var ss []string
	for _, p := range r.patterns {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser.
func (r *RegexList) Set(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	r.patterns = append(r.patterns, rx)
	return nil
}

// Type names the flag value for pflag.
func (r *RegexList) Type() string { return "regex" }

func (r RegexList) IsDefined() bool {
	return len(r.patterns) != 0
}

func (r RegexList) AnyMatch(s string) bool {
	for _, p := range r.patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// TagFilter selects instances by tag. With Include set, an instance needs
// at least one included tag; any excluded tag rejects it.
type TagFilter struct {
	Include []string
	Exclude []string
}

func (f TagFilter) AsFilter(id TestID) bool {
	for _, tag := range id.Tags {
		if slices.Contains(f.Exclude, tag) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, tag := range id.Tags {
		if slices.Contains(f.Include, tag) {
			return true
		}
	}
	return false
}
