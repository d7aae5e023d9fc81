package session

import (
	"fmt"
	"io"
	"strings"

	"github.com/nedpals/tla-sany-lsp/sany"
)

// Dump writes the tree in pre-order, one header line per node followed by its
// source text. Both are indented with one bar per level of depth.
func (s *Session) Dump(w io.Writer) error {
	if s.Tree == nil || s.Tree.Root == nil {
		return nil
	}

	type frame struct {
		node  *sany.Node
		depth int
	}

	stack := []frame{{s.Tree.Root, 1}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		bars := strings.Repeat("|", top.depth)
		if _, err := fmt.Fprintf(w, "%s %s %s %s\n", bars, top.node.Kind, top.node.Name, top.node.Location); err != nil {
			return err
		}

		text, err := s.Text(top.node, bars+" ")
		if err == nil && text != "" {
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			if _, err := io.WriteString(w, text); err != nil {
				return err
			}
		}

		for i := len(top.node.Children) - 1; i >= 0; i-- {
			if child := top.node.Children[i]; child != nil {
				stack = append(stack, frame{child, top.depth + 1})
			}
		}
	}
	return nil
}
