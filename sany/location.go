package sany

import "fmt"

// Location is a source range as reported by the analyzer. Lines and columns
// are 1-based and inclusive on both ends.
type Location struct {
	Source      string `json:"source"`
	BeginLine   int    `json:"beginLine"`
	BeginColumn int    `json:"beginColumn"`
	EndLine     int    `json:"endLine"`
	EndColumn   int    `json:"endColumn"`
}

// Span is a 0-based, inclusive range derived from a Location.
type Span struct {
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

// Span subtracts one from every coordinate. Negative values are kept as-is.
func (loc Location) Span() Span {
	return Span{
		StartLine:   loc.BeginLine - 1,
		StartColumn: loc.BeginColumn - 1,
		EndLine:     loc.EndLine - 1,
		EndColumn:   loc.EndColumn - 1,
	}
}

// Clamped returns the 0-based span with every coordinate floored at zero.
// Analyzer errors reported at the very first character come out as 0:0
// instead of -1:-1.
func (loc Location) Clamped() Span {
	sp := loc.Span()
	return Span{
		StartLine:   max(sp.StartLine, 0),
		StartColumn: max(sp.StartColumn, 0),
		EndLine:     max(sp.EndLine, 0),
		EndColumn:   max(sp.EndColumn, 0),
	}
}

// Contains reports whether the 0-based (line, col) falls within the span.
// Columns are only checked on the boundary lines: against StartColumn on the
// first line and EndColumn on the last one. Interior lines match any column.
func (sp Span) Contains(line, col int) bool {
	if line < sp.StartLine || line > sp.EndLine {
		return false
	}
	if line == sp.StartLine && col < sp.StartColumn {
		return false
	}
	if line == sp.EndLine && col > sp.EndColumn {
		return false
	}
	return true
}

// IsZero reports whether the location carries no coordinates at all.
func (loc Location) IsZero() bool {
	return loc.BeginLine == 0 && loc.BeginColumn == 0 && loc.EndLine == 0 && loc.EndColumn == 0
}

func (loc Location) String() string {
	return fmt.Sprintf("line %d, col %d to line %d, col %d of module %s",
		loc.BeginLine, loc.BeginColumn, loc.EndLine, loc.EndColumn, loc.Source)
}
