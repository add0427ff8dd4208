// Package treefile reads and writes decision trees as YAML.
//
// A tree file lists nodes by address:
//
//	nodes:
//	  - addr: 0
//	    cmp: "<"
//	    threshold: 20
//	    left: 1
//	    right: 2
//	  - addr: 1
//	    leaf: BUY
//
// cmp accepts "<", ">", "lt" and "gt". Addresses may appear in any order; gaps
// become zero-valued slots, exactly as an unwritten store slot reads.
package treefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dtree/proto/tree"
)

// ErrBadNode is wrapped by every per-node validation error.
var ErrBadNode = errors.New("bad node")

// File is the on-disk document.
type File struct {
	Nodes []Entry `yaml:"nodes" json:"nodes"`
}

// Entry is one node as written in a tree file. Pointer fields distinguish
// "absent" from zero.
type Entry struct {
	Addr      *int   `yaml:"addr" json:"addr"`
	Leaf      string `yaml:"leaf,omitempty" json:"leaf,omitempty"`
	Cmp       string `yaml:"cmp,omitempty" json:"cmp,omitempty"`
	Threshold *int   `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Left      *int   `yaml:"left,omitempty" json:"left,omitempty"`
	Right     *int   `yaml:"right,omitempty" json:"right,omitempty"`
}

func badNode(addr int, format string, args ...any) error {
	return fmt.Errorf("%w at addr %d: %s", ErrBadNode, addr, fmt.Sprintf(format, args...))
}

// ErrEmpty is returned for a document without nodes.
var ErrEmpty = errors.New("tree has no nodes")

// Parse decodes a tree file into store order: slot i of the result is the
// node at addr i.
func Parse(data []byte) ([]tree.Node, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse tree file: %w", err)
	}
	return FromEntries(f.Nodes)
}

// FromEntries validates entries and lays them out in store order.
func FromEntries(entries []Entry) ([]tree.Node, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}

	byAddr := make(map[int]tree.Node, len(entries))
	highest := -1
	for i, e := range entries {
		if e.Addr == nil {
			return nil, fmt.Errorf("%w: entry %d has no addr", ErrBadNode, i)
		}
		addr := *e.Addr
		if addr < 0 || addr >= tree.Capacity {
			return nil, badNode(addr, "address outside 0..%d", tree.Capacity-1)
		}
		if _, dup := byAddr[addr]; dup {
			return nil, badNode(addr, "duplicate address")
		}

		n, err := e.node(addr)
		if err != nil {
			return nil, err
		}
		byAddr[addr] = n
		highest = max(highest, addr)
	}

	nodes := make([]tree.Node, highest+1)
	for addr, n := range byAddr {
		nodes[addr] = n
	}
	return nodes, nil
}

func (e Entry) node(addr int) (tree.Node, error) {
	if e.Leaf != "" {
		if e.Cmp != "" || e.Threshold != nil || e.Left != nil || e.Right != nil {
			return tree.Node{}, badNode(addr, "leaf %s has branch fields", e.Leaf)
		}
		a, err := tree.ParseAction(e.Leaf)
		if err != nil {
			return tree.Node{}, badNode(addr, "%v", err)
		}
		return tree.Leaf(a), nil
	}

	if e.Cmp == "" || e.Threshold == nil || e.Left == nil || e.Right == nil {
		return tree.Node{}, badNode(addr, "branch needs cmp, threshold, left and right")
	}
	var cmp tree.Comparison
	if err := cmp.UnmarshalText([]byte(e.Cmp)); err != nil {
		return tree.Node{}, badNode(addr, "%v", err)
	}
	if *e.Threshold < 0 || *e.Threshold > 255 {
		return tree.Node{}, badNode(addr, "threshold %d outside 0..255", *e.Threshold)
	}
	for _, child := range []int{*e.Left, *e.Right} {
		if child < 0 || child >= tree.Capacity {
			return tree.Node{}, badNode(addr, "child %d outside 0..%d", child, tree.Capacity-1)
		}
	}
	return tree.Branch(cmp, uint8(*e.Threshold), uint8(*e.Left), uint8(*e.Right)), nil
}

// ToEntries is the inverse of FromEntries: slot i becomes addr i.
func ToEntries(nodes []tree.Node) []Entry {
	entries := make([]Entry, 0, len(nodes))
	for i, n := range nodes {
		addr := i
		e := Entry{Addr: &addr}
		if n.IsLeaf {
			e.Leaf = n.Action.String()
		} else {
			thr, l, r := int(n.Threshold), int(n.Left), int(n.Right)
			e.Cmp, e.Threshold, e.Left, e.Right = n.Cmp.String(), &thr, &l, &r
		}
		entries = append(entries, e)
	}
	return entries
}

// Marshal encodes nodes as a tree file.
func Marshal(nodes []tree.Node) ([]byte, error) {
	if len(nodes) > tree.Capacity {
		return nil, fmt.Errorf("tree has %d nodes, capacity %d", len(nodes), tree.Capacity)
	}

	data, err := yaml.Marshal(&File{Nodes: ToEntries(nodes)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tree: %w", err)
	}
	return data, nil
}

// ReadFile parses the tree file at path.
func ReadFile(path string) ([]tree.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree file: %w", err)
	}
	nodes, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nodes, nil
}

// WriteFile writes nodes to path as a tree file.
func WriteFile(path string, nodes []tree.Node) error {
	data, err := Marshal(nodes)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tree file: %w", err)
	}
	return nil
}
