// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph is the core package of scalargrad: a scalar-valued reverse-mode automatic
// differentiation engine.
//
// The main elements in the package are:
//
//   - Graph: an arena that owns every Node created while building a computation. Nodes are
//     addressed by a NodeId, which is also their creation time: a node's operands always have
//     smaller ids, which makes the graph a DAG by construction.
//
//   - Node: the result of an operation (Add, Mul, Exp, Tanh, ...) or a leaf created with Leaf.
//     It holds the forward value and the gradient accumulated by Backward.
//
//   - Backward: given a root node, visits every node reachable from it exactly once, in
//     reverse topological order, and accumulates into each node's gradient the partial
//     derivative of the root with respect to it.
//
// ## Error Handling
//
// Like the rest of the graph building code, structural errors (nil operands, nodes of a
// different Graph, use of released nodes) panic with an error that includes a stack-trace.
// Use TryBackward, or exceptions.TryCatch[error], to convert them to a regular error.
//
// Numeric domain errors are not reported: Log or Pow of non-positive values and Sqrt of
// negative values yield NaN or Inf, which then propagate through Backward. Package nanlogger
// can be used to monitor for them.
//
// ## Lifecycle
//
// A training loop usually creates the learnable parameters once, takes a Graph.Mark, and at
// every step builds the loss expression, calls Backward, updates the parameters, and then
// calls Graph.Release with the mark, so the next step starts from a clean expression.
package graph

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// NodeId is a unique NodeId within a Graph. It is also the creation order of the node.
type NodeId int

// InvalidNodeId indicates a node that failed to be created, or that has been released.
const InvalidNodeId = NodeId(-1)

// Graph is the arena holding the nodes of a computation.
//
// It is not safe for concurrent use: building expressions and running Backward are strictly
// sequential.
type Graph struct {
	name  string
	nodes []*Node

	// traced indicates that each node created saves the stack-trace of where it was created.
	traced bool
}

// NewGraph creates an empty Graph. The name is only used for printing.
func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: make([]*Node, 0, 64),
	}
}

// Name of the graph, set during its construction.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of live nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// AssertValid panics if the graph is nil.
func (g *Graph) AssertValid() {
	if g == nil {
		Panicf("the Graph is nil")
	}
}

// SetTraced defines whether each node creation is traced. If true, every node
// will save a stack-trace of where it was created, which is helpful for debugging.
// See Node.Trace.
func (g *Graph) SetTraced(traced bool) {
	g.traced = traced
}

// IsTraced returns whether nodes created in this graph save their creation stack-trace.
func (g *Graph) IsTraced() bool { return g.traced }

// registerNode in the graph, returning a new unique id within the Graph.
func (g *Graph) registerNode(node *Node) NodeId {
	id := NodeId(len(g.nodes))
	g.nodes = append(g.nodes, node)
	if g.traced {
		node.trace = errors.Errorf("stack-trace of node #%d (%s) creation", id, node.nodeType)
	}
	return id
}

// NodeById returns the node with the given id. It panics if the id is not a live node.
func (g *Graph) NodeById(id NodeId) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		Panicf("invalid request Graph.NodeById(id=%d): graph %q has %d live nodes", id, g.name, len(g.nodes))
	}
	return g.nodes[id]
}

// Mark returns the id that the next node created will take.
// Use it with Release to drop the nodes created after the mark.
func (g *Graph) Mark() NodeId {
	return NodeId(len(g.nodes))
}

// Release drops every node created at or after mark. Released nodes are invalidated: using them
// as operands, or calling Backward on them, panics.
//
// Nodes created before the mark are untouched. This is how the long-lived parameters survive
// while the expression built at each training step is discarded.
func (g *Graph) Release(mark NodeId) {
	if mark < 0 || int(mark) > len(g.nodes) {
		Panicf("Graph.Release(mark=%d): invalid mark for graph %q with %d nodes", mark, g.name, len(g.nodes))
	}
	for _, node := range g.nodes[mark:] {
		node.graph = nil
		node.id = InvalidNodeId
	}
	clear(g.nodes[mark:])
	g.nodes = g.nodes[:mark]
}

// ZeroGrads resets the gradient of every node in the graph to 0.
func (g *Graph) ZeroGrads() {
	for _, node := range g.nodes {
		node.grad = 0
	}
}

// ZeroGrads resets the gradient of the given nodes to 0. It must be called on the parameters
// before every new Backward call, otherwise gradients accumulate.
func ZeroGrads(nodes ...*Node) {
	for _, node := range nodes {
		if node == nil {
			continue
		}
		node.grad = 0
	}
}

// String prints the graph with all its nodes, in creation order.
func (g *Graph) String() string {
	if g == nil {
		return "Graph(nil)"
	}
	parts := make([]string, 0, len(g.nodes)+1)
	parts = append(parts, fmt.Sprintf("Graph %q: %s nodes", g.name, humanize.Comma(int64(len(g.nodes)))))
	for _, node := range g.nodes {
		parts = append(parts, "\t"+node.String())
	}
	return strings.Join(parts, "\n")
}
