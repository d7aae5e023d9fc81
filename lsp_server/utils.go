package lsp_server

import (
	"fortio.org/safecast"
	"github.com/nedpals/tla-sany-lsp/sany"
	lsp "go.lsp.dev/protocol"
)

const maxUint32 = ^uint32(0)

func safeUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return maxUint32
	}
	return v
}

// toRange converts an analyzer location to editor coordinates: every
// coordinate moves down by one and negative results are clamped to zero.
func toRange(loc sany.Location) lsp.Range {
	sp := loc.Clamped()
	return lsp.Range{
		Start: lsp.Position{Line: safeUint32(sp.StartLine), Character: safeUint32(sp.StartColumn)},
		End:   lsp.Position{Line: safeUint32(sp.EndLine), Character: safeUint32(sp.EndColumn)},
	}
}

// lineRange covers the whole line, up to the start of the next one.
func lineRange(line uint32) lsp.Range {
	return lsp.Range{
		Start: lsp.Position{Line: line, Character: 0},
		End:   lsp.Position{Line: line + 1, Character: 0},
	}
}
