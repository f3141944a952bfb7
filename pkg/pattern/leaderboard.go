package pattern

// Leaderboard represents a ranked list, e.g. benchmark variants by throughput.
type Leaderboard struct {
	Label      string            `json:"label"`
	MetricName string            `json:"metric_name"` // e.g. "ops/s"
	Items      []LeaderboardItem `json:"items"`
	Direction  string            `json:"direction"` // "highest" or "lowest"
	TotalCount int               `json:"total_count"`
	ShowRank   bool              `json:"show_rank"`
}

// LeaderboardItem is a single ranked entry.
type LeaderboardItem struct {
	Name    string  `json:"name"`
	Metric  string  `json:"metric"` // formatted value
	Value   float64 `json:"value"`  // numeric value for sorting
	Rank    int     `json:"rank"`
	Context string  `json:"context,omitempty"` // e.g. "p95 1.20ms ±0.05"
}

func (l *Leaderboard) Type() PatternType { return PatternTypeLeaderboard }
