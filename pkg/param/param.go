// Package param expands parametrize axes into concrete, uniquely named test instances.
package param

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dkoosis/testrig/pkg/fixture"
)

// Axis is one named dimension of parameter values.
type Axis struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Param is one bound parameter of an instance.
type Param struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Instance is one concrete execution unit produced from a test and its axes.
type Instance struct {
	Base   string  `json:"base"`
	Name   string  `json:"name"`
	Index  int     `json:"index"`
	Params []Param `json:"params,omitempty"`
}

// Value returns the value bound to the named parameter.
func (i Instance) Value(name string) (any, bool) {
	for _, p := range i.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// DuplicateAxisError is returned when two axes of one test share a name.
type DuplicateAxisError struct {
	Test string
	Axis string
}

func (e *DuplicateAxisError) Error() string {
	return fmt.Sprintf("test %q declares parametrize axis %q more than once", e.Test, e.Axis)
}

func (e *DuplicateAxisError) Is(target error) bool { return target == fixture.ErrConfiguration }

// EmptyAxisNameError is returned for an axis without a name.
type EmptyAxisNameError struct {
	Test string
}

func (e *EmptyAxisNameError) Error() string {
	return fmt.Sprintf("test %q declares a parametrize axis with an empty name", e.Test)
}

func (e *EmptyAxisNameError) Is(target error) bool { return target == fixture.ErrConfiguration }

// Validate checks axis names.
func Validate(base string, axes []Axis) error {
	seen := make(map[string]bool, len(axes))
	for _, a := range axes {
		if a.Name == "" {
			return &EmptyAxisNameError{Test: base}
		}
		if seen[a.Name] {
			return &DuplicateAxisError{Test: base, Axis: a.Name}
		}
		seen[a.Name] = true
	}
	return nil
}

// Expand returns the cartesian product of axes as instances of base.
//
// With no axes the result is the single instance base. An axis with no
// values yields no instances at all. The first axis varies slowest, and name
// segments follow axis order: base[a=1,b=x].
func Expand(base string, axes []Axis) ([]Instance, error) {
	if err := Validate(base, axes); err != nil {
		return nil, err
	}
	if len(axes) == 0 {
		return []Instance{{Base: base, Name: base}}, nil
	}

	total := 1
	for _, a := range axes {
		total *= len(a.Values)
	}
	if total == 0 {
		return nil, nil
	}

	formatted := formatAxes(axes)
	out := make([]Instance, 0, total)
	idx := make([]int, len(axes))
	for n := 0; n < total; n++ {
		params := make([]Param, len(axes))
		segs := make([]string, len(axes))
		for i, a := range axes {
			params[i] = Param{Name: a.Name, Value: a.Values[idx[i]]}
			segs[i] = a.Name + "=" + formatted[i][idx[i]]
		}
		out = append(out, Instance{
			Base:   base,
			Name:   base + "[" + strings.Join(segs, ",") + "]",
			Index:  n,
			Params: params,
		})

		// odometer: last axis fastest
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
	}

	dedupe(out)
	return out, nil
}

// formatAxes renders each value of each axis. Within an axis, a string is
// quoted when its plain form would read as another value of the same axis or
// as a non-string literal.
func formatAxes(axes []Axis) [][]string {
	res := make([][]string, len(axes))
	for i, a := range axes {
		plain := make(map[string]int, len(a.Values))
		for _, v := range a.Values {
			plain[FormatValue(v)]++
		}
		res[i] = make([]string, len(a.Values))
		for j, v := range a.Values {
			s := FormatValue(v)
			if str, ok := v.(string); ok && (plain[s] > 1 || needsQuote(str)) {
				s = strconv.Quote(str)
			}
			res[i][j] = s
		}
	}
	return res
}

// dedupe appends #n to names that still collide (identical tuples or values
// whose %v forms coincide).
func dedupe(instances []Instance) {
	seen := make(map[string]int, len(instances))
	for i := range instances {
		n := instances[i].Name
		if c, ok := seen[n]; ok {
			seen[n] = c + 1
			instances[i].Name = fmt.Sprintf("%s#%d", n, c+1)
			continue
		}
		seen[n] = 0
	}
}

// FormatValue renders a parameter value in its natural form: numbers and
// booleans as literals, strings unquoted, nil as "nil".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// needsQuote reports whether an unquoted string would be ambiguous inside a
// name segment.
func needsQuote(s string) bool {
	if s == "" || s == "nil" || s == "true" || s == "false" {
		return true
	}
	if strings.ContainsAny(s, ",=[]\"") || strings.TrimSpace(s) != s {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}
