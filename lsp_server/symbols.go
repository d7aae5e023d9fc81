package lsp_server

import (
	"path/filepath"

	"github.com/nedpals/tla-sany-lsp/sany"
	lsp "go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

func symbolKind(kind sany.Kind) lsp.SymbolKind {
	switch kind {
	case sany.ModuleKind:
		return lsp.SymbolKindModule
	case sany.OpDefKind, sany.DefKind:
		return lsp.SymbolKindFunction
	case sany.OpDeclKind, sany.FormalParamKind:
		return lsp.SymbolKindVariable
	case sany.TheoremKind, sany.AssumeKind:
		return lsp.SymbolKindProperty
	case sany.InstanceKind:
		return lsp.SymbolKindNamespace
	default:
		return lsp.SymbolKindObject
	}
}

// workspaceSymbols searches the definitions of every analyzed document.
// Definitions shared by several documents, such as those of a common
// library module, are listed once.
func (s *LspServer) workspaceSymbols(query string) []lsp.SymbolInformation {
	type key struct {
		name string
		path string
		loc  sany.Location
	}

	seen := map[key]bool{}
	results := []lsp.SymbolInformation{}

	for _, sess := range s.registry.Sessions() {
		for _, sym := range sess.Symbols(query) {
			k := key{sym.Name, sym.Path, sym.Node.Location}
			if seen[k] {
				continue
			}
			seen[k] = true

			results = append(results, lsp.SymbolInformation{
				Name: sym.Name,
				Kind: symbolKind(sym.Node.Kind),
				Location: lsp.Location{
					URI:   uri.File(sym.Path),
					Range: toRange(sym.Node.Location),
				},
				ContainerName: filepath.Base(sess.Path),
			})
		}
	}
	return results
}
