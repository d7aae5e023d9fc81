// Package index maps source positions to the semantic nodes that cover them.
package index

import (
	"github.com/nedpals/tla-sany-lsp/sany"
)

// Entry records one visited node. Depth is 1 for the root.
type Entry struct {
	Location sany.Location
	Depth    int
	Node     *sany.Node
}

// FileIndex holds, for each absolute file path, the entries of every node
// located in that file in pre-order. A descendant always comes after its
// ancestor and has a greater depth.
type FileIndex map[string][]Entry

// PathFunc resolves a Location.Source to an absolute file path.
type PathFunc func(source string) string

type pending struct {
	node  *sany.Node
	depth int
}

// Build walks the tree rooted at root once, in pre-order, and groups the
// visited nodes by file. The walk keeps its own stack so deeply nested
// specifications do not grow the goroutine stack. A node reachable twice is
// only indexed the first time.
func Build(root *sany.Node, resolve PathFunc) FileIndex {
	idx := FileIndex{}
	if root == nil {
		return idx
	}

	visited := map[*sany.Node]struct{}{}
	stack := []pending{{node: root, depth: 1}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[top.node]; seen {
			continue
		}
		visited[top.node] = struct{}{}

		path := resolve(top.node.Location.Source)
		idx[path] = append(idx[path], Entry{
			Location: top.node.Location,
			Depth:    top.depth,
			Node:     top.node,
		})

		// push in reverse so the first child is popped first
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			child := top.node.Children[i]
			if child == nil {
				continue
			}
			stack = append(stack, pending{node: child, depth: top.depth + 1})
		}
	}

	return idx
}

// Files lists the indexed file paths.
func (idx FileIndex) Files() []string {
	files := make([]string, 0, len(idx))
	for path := range idx {
		files = append(files, path)
	}
	return files
}

// Len returns the total number of entries across all files.
func (idx FileIndex) Len() int {
	total := 0
	for _, entries := range idx {
		total += len(entries)
	}
	return total
}
