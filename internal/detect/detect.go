// Package detect sniffs saved report files to determine their encoding.
package detect

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// Format represents a recognized report encoding.
type Format int

const (
	Unknown Format = iota
	JSON           // report written by report.EncodeJSON
	YAML           // report written by report.EncodeYAML
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	}
	return "unknown"
}

// reportKeys are top-level keys of a saved report; one must be present.
var reportKeys = []string{"run_id", "summary", "results"}

// Sniff examines data to determine the report format.
func Sniff(data []byte) Format {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return Unknown
	}
	if data[0] == '{' {
		if isJSONReport(data) {
			return JSON
		}
		return Unknown
	}
	if isYAMLReport(data) {
		return YAML
	}
	return Unknown
}

func isJSONReport(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	for _, k := range reportKeys {
		if _, ok := probe[k]; ok {
			return true
		}
	}
	return false
}

// isYAMLReport looks for a report key at the start of an unindented line.
func isYAMLReport(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == ' ' || line[0] == '#' || line == "---" {
			continue
		}
		key, _, ok := strings.Cut(line, ":")
		if !ok {
			return false
		}
		for _, k := range reportKeys {
			if key == k {
				return true
			}
		}
	}
	return false
}
