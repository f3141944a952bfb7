package pattern

// SummaryKind identifies what a summary describes so renderers can dispatch
// without inspecting labels.
type SummaryKind string

const (
	SummaryKindRun   SummaryKind = "run"
	SummaryKindSuite SummaryKind = "suite"
	SummaryKindBench SummaryKind = "bench"
)

// Summary represents high-level counts.
type Summary struct {
	Label   string        `json:"label"`
	Kind    SummaryKind   `json:"kind"`
	Metrics []SummaryItem `json:"metrics"`
}

// SummaryItem is a single metric in a summary.
type SummaryItem struct {
	Label string `json:"label"` // e.g. "Passed", "Failed"
	Value string `json:"value"`
	Kind  string `json:"kind"` // KindSuccess, KindError, ...; affects coloring
}

func (s *Summary) Type() PatternType { return PatternTypeSummary }
