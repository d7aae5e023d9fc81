package index

import (
	"path/filepath"

	"github.com/nedpals/tla-sany-lsp/sany"
)

// Lookup returns the deepest node in path whose range contains the 0-based
// (line, col), or nil when nothing does.
//
// Entries are scanned in pre-order and a match only replaces the current one
// when it is strictly deeper. Two overlapping entries of the same depth
// therefore resolve to whichever was visited first. Well-formed trees never
// produce such overlaps, but callers should not assume any other rule.
func (idx FileIndex) Lookup(path string, line, col int) *sany.Node {
	entry, ok := idx.LookupEntry(path, line, col)
	if !ok {
		return nil
	}
	return entry.Node
}

// LookupEntry is Lookup returning the whole matching entry.
func (idx FileIndex) LookupEntry(path string, line, col int) (Entry, bool) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	var (
		target   Entry
		maxDepth int
	)
	for _, entry := range idx[path] {
		if !entry.Location.Span().Contains(line, col) {
			continue
		}
		if entry.Depth > maxDepth {
			target = entry
			maxDepth = entry.Depth
		}
	}
	return target, maxDepth > 0
}
