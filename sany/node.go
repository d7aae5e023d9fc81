package sany

// Kind tags the semantic role of a Node.
type Kind int

const (
	OtherKind Kind = iota
	ModuleKind
	OpDefKind
	OpDeclKind
	FormalParamKind
	TheoremKind
	AssumeKind
	InstanceKind
	DefKind
	ExprKind
)

var kindNames = map[Kind]string{
	OtherKind:       "other",
	ModuleKind:      "module",
	OpDefKind:       "opdef",
	OpDeclKind:      "opdecl",
	FormalParamKind: "formal",
	TheoremKind:     "theorem",
	AssumeKind:      "assume",
	InstanceKind:    "instance",
	DefKind:         "def",
	ExprKind:        "expr",
}

// ParseKind maps a wire kind name to its Kind. Unknown names are OtherKind.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return OtherKind
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return kindNames[OtherKind]
}

// IsDefinition reports whether nodes of this kind can appear in a symbol context.
func (k Kind) IsDefinition() bool {
	switch k {
	case OpDefKind, OpDeclKind, FormalParamKind, TheoremKind, AssumeKind, InstanceKind, DefKind, ModuleKind:
		return true
	}
	return false
}

// Node is one semantic node of an analyzed specification. Nodes are owned by
// the Tree they were decoded into and must be treated as read-only.
type Node struct {
	ID          int
	Kind        Kind
	Name        string
	Location    Location
	Children    []*Node
	PreComments []string

	// Source points at the original definition when this node is an alias
	// of it, for example a definition brought in through INSTANCE. It is nil
	// for everything else.
	Source *Node
}

// Origin returns the node's Source if set, otherwise the node itself. Only
// one level is followed.
func (n *Node) Origin() *Node {
	if n.Source != nil {
		return n.Source
	}
	return n
}

// Context is the name to definition table attached to the root module.
type Context map[string]*Node

// Lookup returns the definition bound to name.
func (c Context) Lookup(name string) (*Node, bool) {
	node, ok := c[name]
	return node, ok && node != nil
}

// Names lists every bound name.
func (c Context) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	return names
}

// Tree is a successfully analyzed specification.
type Tree struct {
	// File is the absolute path of the analyzed root file.
	File    string
	Root    *Node
	Context Context
}

// Len counts the nodes reachable from the root.
func (t *Tree) Len() int {
	if t == nil || t.Root == nil {
		return 0
	}
	count := 0
	stack := []*Node{t.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, n.Children...)
	}
	return count
}
