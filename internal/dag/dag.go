// Package dag validates and orders dependency graphs keyed by string node names.
//
// Ordering is a post-order depth-first traversal with three-color marking
// (unvisited, in progress, done). Reaching a node that is still in progress
// means the graph has a cycle; the traversal stops immediately and reports
// the cycle path.
package dag

import (
	"fmt"
	"strings"
)

// Edges returns the ordered dependencies of node, and false if node is unknown.
type Edges func(node string) ([]string, bool)

type color uint8

const (
	white color = iota
	grey
	black
)

// CycleError reports a dependency cycle. Path starts and ends on the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// MissingNodeError reports a reference to a node the graph does not define.
// From is empty when the missing node was requested directly.
type MissingNodeError struct {
	Node string
	From string
}

func (e *MissingNodeError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("unknown node %q", e.Node)
	}
	return fmt.Sprintf("unknown node %q (required by %q)", e.Node, e.From)
}

type walker struct {
	edges Edges
	marks map[string]color
	stack []string
	out   []string
}

// Sort returns roots and everything reachable from them, each node placed
// after all of its dependencies. Roots are visited in the order given and
// dependencies in the order Edges returns them, so the result is stable for
// a given graph. Duplicate roots are ignored.
func Sort(roots []string, edges Edges) ([]string, error) {
	w := &walker{edges: edges, marks: make(map[string]color)}
	for _, r := range roots {
		if err := w.visit(r, ""); err != nil {
			return nil, err
		}
	}
	return w.out, nil
}

// FindCycle walks every node and returns the first *CycleError found, or nil.
// Unknown dependencies are reported as *MissingNodeError.
func FindCycle(nodes []string, edges Edges) error {
	_, err := Sort(nodes, edges)
	return err
}

func (w *walker) visit(node, from string) error {
	switch w.marks[node] {
	case black:
		return nil
	case grey:
		return &CycleError{Path: w.cyclePath(node)}
	}

	deps, ok := w.edges(node)
	if !ok {
		return &MissingNodeError{Node: node, From: from}
	}

	w.marks[node] = grey
	w.stack = append(w.stack, node)
	for _, d := range deps {
		if err := w.visit(d, node); err != nil {
			return err
		}
	}
	w.stack = w.stack[:len(w.stack)-1]
	w.marks[node] = black
	w.out = append(w.out, node)
	return nil
}

// cyclePath slices the active stack from the first occurrence of node and
// closes the loop by repeating it.
func (w *walker) cyclePath(node string) []string {
	start := 0
	for i, n := range w.stack {
		if n == node {
			start = i
			break
		}
	}
	path := append([]string(nil), w.stack[start:]...)
	return append(path, node)
}
