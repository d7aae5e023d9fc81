package source

import (
	"strings"

	"github.com/nedpals/tla-sany-lsp/sany"
)

// Text returns the source text spanned by loc, read from the file at path.
// Every emitted line is preceded by prefix.
func (f *Files) Text(path string, loc sany.Location, prefix string) (string, error) {
	lines, err := f.Lines(path)
	if err != nil {
		return "", err
	}
	return Slice(lines, loc.Clamped(), prefix), nil
}

// Slice cuts the text covered by the 0-based inclusive span out of lines.
//
// A single-line span yields the characters from StartColumn to EndColumn of
// that line. A multi-line span yields the rest of the first line from
// StartColumn, the intermediate lines whole, and the last line up to
// EndColumn. Columns count characters, not bytes, and are clamped to the line.
func Slice(lines []string, sp sany.Span, prefix string) string {
	if sp.StartLine < 0 || sp.StartLine >= len(lines) || sp.EndLine < sp.StartLine {
		return ""
	}

	if sp.StartLine == sp.EndLine {
		return withPrefix(columns(lines[sp.StartLine], sp.StartColumn, sp.EndColumn+1), prefix)
	}

	var sb strings.Builder
	sb.WriteString(withPrefix(columns(lines[sp.StartLine], sp.StartColumn, -1), prefix))
	for i := sp.StartLine + 1; i < sp.EndLine && i < len(lines); i++ {
		sb.WriteString(withPrefix(lines[i], prefix))
	}
	if sp.EndLine < len(lines) {
		sb.WriteString(withPrefix(columns(lines[sp.EndLine], 0, sp.EndColumn+1), prefix))
	}
	return sb.String()
}

// columns returns line[from:to] counted in runes. A negative to means the
// end of the line.
func columns(line string, from, to int) string {
	runes := []rune(line)
	if to < 0 || to > len(runes) {
		to = len(runes)
	}
	if from < 0 {
		from = 0
	}
	if from >= to {
		return ""
	}
	return string(runes[from:to])
}

func withPrefix(text, prefix string) string {
	if prefix == "" || text == "" {
		return text
	}

	var sb strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		sb.WriteString(prefix)
		sb.WriteString(line)
	}
	return sb.String()
}
