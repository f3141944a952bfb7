package pattern

// Sparkline represents a word-sized trend graphic, e.g. per-round timings.
type Sparkline struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
	Min    float64   `json:"min"` // 0 = auto-detect
	Max    float64   `json:"max"` // 0 = auto-detect
	Unit   string    `json:"unit"`
}

func (s *Sparkline) Type() PatternType { return PatternTypeSparkline }

// Bounds returns Min and Max, detecting them from Values when both are zero.
func (s *Sparkline) Bounds() (lo, hi float64) {
	lo, hi = s.Min, s.Max
	if (lo != 0 || hi != 0) || len(s.Values) == 0 {
		return lo, hi
	}
	lo, hi = s.Values[0], s.Values[0]
	for _, v := range s.Values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
