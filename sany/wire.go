package sany

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Format selects the encoding of the analyzer's output document.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name. The empty string means JSON.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("unknown analyzer format %q", name)
}

type wireNode struct {
	ID       int      `json:"id"`
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Children []int    `json:"children"`
	Comments []string `json:"comments"`
	Source   int      `json:"source"`
}

type wireError struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
}

type wireDocument struct {
	Root    int            `json:"root"`
	Nodes   []wireNode     `json:"nodes"`
	Context map[string]int `json:"context"`
	Errors  []wireError    `json:"errors"`
}

var ErrEmptyDocument = errors.New("analyzer produced no output")

// Decode reads one analyzer document from r. file is recorded as the root
// file of a successful result.
func Decode(r io.Reader, format Format, file string) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}

	var doc wireDocument
	switch format {
	case FormatMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("unable to decode msgpack document: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unable to decode json document: %w", err)
		}
	}

	return doc.result(file)
}

func (doc *wireDocument) result(file string) (*Result, error) {
	if len(doc.Errors) != 0 {
		records := make([]ErrorRecord, 0, len(doc.Errors))
		for _, e := range doc.Errors {
			kind := ParseError
			if e.Kind == "semantic" {
				kind = SemanticError
			}
			records = append(records, ErrorRecord{
				Kind:     kind,
				Message:  e.Message,
				Location: e.Location,
			})
		}
		return Failed(records...), nil
	}

	nodes := make(map[int]*Node, len(doc.Nodes))
	for _, wn := range doc.Nodes {
		if wn.ID <= 0 {
			return nil, fmt.Errorf("node id must be positive, got %d", wn.ID)
		}
		if _, dup := nodes[wn.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %d", wn.ID)
		}
		nodes[wn.ID] = &Node{
			ID:          wn.ID,
			Kind:        ParseKind(wn.Kind),
			Name:        wn.Name,
			Location:    wn.Location,
			PreComments: wn.Comments,
		}
	}

	root, ok := nodes[doc.Root]
	if !ok {
		return nil, fmt.Errorf("root node %d not found", doc.Root)
	}

	parents := make(map[int]int, len(doc.Nodes))
	for _, wn := range doc.Nodes {
		node := nodes[wn.ID]
		for _, cid := range wn.Children {
			child, ok := nodes[cid]
			if !ok {
				return nil, fmt.Errorf("node %d: unknown child %d", wn.ID, cid)
			}
			if cid == doc.Root {
				return nil, fmt.Errorf("node %d: root %d cannot be a child", wn.ID, cid)
			}
			if p, seen := parents[cid]; seen {
				return nil, fmt.Errorf("node %d has two parents (%d and %d)", cid, p, wn.ID)
			}
			parents[cid] = wn.ID
			node.Children = append(node.Children, child)
		}
		if wn.Source != 0 {
			src, ok := nodes[wn.Source]
			if !ok {
				return nil, fmt.Errorf("node %d: unknown source %d", wn.ID, wn.Source)
			}
			node.Source = src
		}
	}

	ctx := make(Context, len(doc.Context))
	for name, id := range doc.Context {
		node, ok := nodes[id]
		if !ok {
			return nil, fmt.Errorf("context entry %q: unknown node %d", name, id)
		}
		ctx[name] = node
	}

	return Succeeded(&Tree{File: file, Root: root, Context: ctx}), nil
}
