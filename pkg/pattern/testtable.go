package pattern

// TestTable represents test instance results with status and timing.
type TestTable struct {
	Label   string          `json:"label"`
	Source  string          `json:"source,omitempty"` // owning suite
	Results []TestTableItem `json:"results"`
}

// TestTableItem is a single test instance result.
type TestTableItem struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // StatusPass, StatusFail, StatusError, StatusSkip
	Duration string `json:"duration,omitempty"`
	Details  string `json:"details,omitempty"` // failure message, skip reason
}

func (t *TestTable) Type() PatternType { return PatternTypeTestTable }

// Failing returns the items that failed or errored.
func (t *TestTable) Failing() []TestTableItem {
	var out []TestTableItem
	for _, r := range t.Results {
		if r.Status == StatusFail || r.Status == StatusError {
			out = append(out, r)
		}
	}
	return out
}
