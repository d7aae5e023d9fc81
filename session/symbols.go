package session

import (
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/nedpals/tla-sany-lsp/sany"
)

// MaxSuggestionDistance bounds how far a misspelled name may be from a
// suggested one.
const MaxSuggestionDistance = 3

// Symbol is a named definition of the root module's context.
type Symbol struct {
	Name string
	Node *sany.Node
	Path string
}

// Symbols lists the context definitions whose name fuzzily matches query,
// best match first. An empty query matches every name in alphabetical order.
// Each definition is resolved the way ResolveSymbol does, and names that
// resolve to something other than a definition are left out.
func (s *Session) Symbols(query string) []Symbol {
	if s.Tree == nil {
		return nil
	}

	names := s.Tree.Context.Names()
	sort.Strings(names)

	if query != "" {
		ranks := fuzzy.RankFindNormalizedFold(query, names)
		sort.Stable(ranks)
		names = names[:0:0]
		for _, rank := range ranks {
			names = append(names, rank.Target)
		}
	}

	symbols := make([]Symbol, 0, len(names))
	for _, name := range names {
		node, ok := s.ResolveSymbol(name)
		if !ok || !node.Kind.IsDefinition() {
			continue
		}
		symbols = append(symbols, Symbol{
			Name: name,
			Node: node,
			Path: s.PathOf(node.Location),
		})
	}
	return symbols
}

// Suggest returns the context name closest to name by edit distance, if one
// is within MaxSuggestionDistance.
func (s *Session) Suggest(name string) (string, bool) {
	if s.Tree == nil {
		return "", false
	}

	names := s.Tree.Context.Names()
	sort.Strings(names)

	minDist := -1
	closest := ""
	for _, candidate := range names {
		dist := levenshtein.ComputeDistance(name, candidate)
		if minDist == -1 || dist < minDist {
			minDist = dist
			closest = candidate
		}
	}

	if minDist < 0 || minDist > MaxSuggestionDistance {
		return "", false
	}
	return closest, true
}
