// Package render provides output renderers for report patterns.
package render

import (
	"fmt"

	"github.com/dkoosis/testrig/pkg/mapper"
	"github.com/dkoosis/testrig/pkg/pattern"
	"github.com/dkoosis/testrig/pkg/report"
)

// Renderer converts patterns to formatted output.
type Renderer interface {
	Render(patterns []pattern.Pattern) string
}

// Formats accepted by ByName.
const (
	FormatTerminal = "terminal"
	FormatMarkdown = "markdown"
)

// ByName returns the renderer for format.
func ByName(format string, theme Theme, width int) (Renderer, error) {
	switch format {
	case FormatTerminal, "":
		return NewTerminal(theme, width), nil
	case FormatMarkdown, "md":
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown render format %q", format)
	}
}

// Report maps rep to patterns and renders them with r.
func Report(r Renderer, rep *report.Report) string {
	return r.Render(mapper.FromReport(rep))
}

// StatusMark maps a result status to its glyph category.
func StatusMark(st report.Status) Mark {
	switch st {
	case report.Passed:
		return MarkPass
	case report.Failed:
		return MarkFail
	case report.Errored:
		return MarkError
	default:
		return MarkSkip
	}
}
