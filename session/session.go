// Package session bundles an analyzed specification with the index and text
// cache needed to answer navigation queries about it.
package session

import (
	"strings"

	"github.com/nedpals/tla-sany-lsp/index"
	"github.com/nedpals/tla-sany-lsp/sany"
	"github.com/nedpals/tla-sany-lsp/source"
	"go.lsp.dev/uri"
)

// Session is the analyzed state of one document. It is immutable once built
// and is replaced wholesale when the document is analyzed again.
type Session struct {
	URI      uri.URI
	Path     string
	Tree     *sany.Tree
	Index    index.FileIndex
	Files    *source.Files
	Resolver *sany.Resolver
}

// New indexes tree. Module names found in node locations are resolved against
// the directory of the tree's root file, then searchPaths.
func New(tree *sany.Tree, searchPaths ...string) *Session {
	resolver := sany.NewResolver(tree.File, searchPaths...)
	return &Session{
		URI:      uri.File(tree.File),
		Path:     tree.File,
		Tree:     tree,
		Index:    index.Build(tree.Root, resolver.Resolve),
		Files:    source.NewFiles(),
		Resolver: resolver,
	}
}

// PathOf returns the absolute path of the file loc points into.
func (s *Session) PathOf(loc sany.Location) string {
	return s.Resolver.Resolve(loc.Source)
}

// NodeAt returns the deepest node covering the 0-based position in path.
func (s *Session) NodeAt(path string, line, col int) *sany.Node {
	return s.Index.Lookup(path, line, col)
}

// Text returns the source text of node, each line preceded by prefix.
func (s *Session) Text(node *sany.Node, prefix string) (string, error) {
	return s.Files.Text(s.PathOf(node.Location), node.Location, prefix)
}

// ResolveSymbol looks name up in the root module's context. A definition
// that stands for another one, such as an instantiated operator, resolves to
// that original definition. Only one level of redirection is followed.
func (s *Session) ResolveSymbol(name string) (*sany.Node, bool) {
	if s.Tree == nil {
		return nil, false
	}
	node, ok := s.Tree.Context.Lookup(name)
	if !ok {
		return nil, false
	}
	return node.Origin(), true
}

// NameAt returns the cursor node at the position together with the name it
// spells out, which is its source text without surrounding whitespace.
func (s *Session) NameAt(path string, line, col int) (*sany.Node, string, bool) {
	node := s.NodeAt(path, line, col)
	if node == nil {
		return nil, "", false
	}
	text, err := s.Text(node, "")
	if err != nil {
		return node, "", false
	}
	return node, strings.TrimSpace(text), true
}

// DefinitionAt resolves the name under the cursor to its definition.
func (s *Session) DefinitionAt(path string, line, col int) (*sany.Node, bool) {
	_, name, ok := s.NameAt(path, line, col)
	if !ok || name == "" {
		return nil, false
	}
	return s.ResolveSymbol(name)
}

// HoverAt returns the leading comments of the node under the cursor followed
// by those of the definition its name resolves to, when that is a different
// node. Comments are separated by a blank line. ok is false when there is
// nothing to show.
func (s *Session) HoverAt(path string, line, col int) (string, bool) {
	node, name, found := s.NameAt(path, line, col)
	if node == nil {
		return "", false
	}

	comments := append([]string{}, node.PreComments...)
	if found && name != "" {
		if def, ok := s.ResolveSymbol(name); ok && def != node {
			comments = append(comments, def.PreComments...)
		}
	}

	content := strings.Join(comments, "\n\n")
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}
