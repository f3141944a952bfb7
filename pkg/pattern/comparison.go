package pattern

// Comparison represents variant-versus-baseline deltas.
type Comparison struct {
	Label   string           `json:"label"`
	Changes []ComparisonItem `json:"changes"`
}

// ComparisonItem is a single baseline/variant delta. Change is a ratio
// when Unit is "x" (1 = no change).
type ComparisonItem struct {
	Label  string  `json:"label"`
	Before string  `json:"before"`
	After  string  `json:"after"`
	Change float64 `json:"change"`
	Unit   string  `json:"unit"`
}

func (c *Comparison) Type() PatternType { return PatternTypeComparison }
