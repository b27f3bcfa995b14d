// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	. "github.com/gomlx/exceptions"
)

// MaxInputs is the maximum number of operands of any node.
const MaxInputs = 2

// Node represents the result of an operation in the computation graph, and can be used as input
// to further operations.
//
// Leaf nodes (see Leaf) have no operands: they are inputs, constants or learnable parameters.
// The value of a leaf can be changed with SetValue (that's what optimizers do between training
// steps), and every node derived from it afterwards sees the new value.
//
// Nodes created by an operation keep the ids of their operands and their NodeType, which
// selects the backward rule in VJPRegistration. Operands and type are frozen at creation.
type Node struct {
	graph    *Graph
	id       NodeId // id within graph.
	nodeType NodeType

	// inputs are the edges of the computation graph, only the first numInputs are valid.
	inputs    [MaxInputs]NodeId
	numInputs int

	value, grad float64

	// alpha is the static parameter of NodeTypeLeakyRelu.
	alpha float64

	trace error // Stack-trace error of where Node was created. Stored if graph.traced is true.
}

// Leaf creates a node with the given value and no operands.
func Leaf(g *Graph, value float64) *Node {
	g.AssertValid()
	return newNode(g, NodeTypeLeaf, value)
}

// newNode creates and registers a node of the given type whose operands are inputs.
// It panics if any of the inputs is nil, released or from a different graph.
func newNode(g *Graph, nodeType NodeType, value float64, inputs ...*Node) *Node {
	if len(inputs) > MaxInputs {
		Panicf("%s: node can have at most %d operands, got %d", nodeType, MaxInputs, len(inputs))
	}
	node := &Node{
		graph:     g,
		nodeType:  nodeType,
		value:     value,
		numInputs: len(inputs),
	}
	for ii, input := range inputs {
		node.inputs[ii] = input.id
	}
	node.id = g.registerNode(node)
	return node
}

// validateBuildingGraphFromInputs checks that all inputs are valid and belong to the same
// graph, and returns that graph. It panics otherwise.
func validateBuildingGraphFromInputs(opName string, inputs ...*Node) *Graph {
	var g *Graph
	for ii, input := range inputs {
		if input == nil {
			Panicf("%s: operand #%d is nil", opName, ii)
		}
		if input.graph == nil {
			Panicf("%s: operand #%d was released (see Graph.Release) and can no longer be used", opName, ii)
		}
		if g == nil {
			g = input.graph
		} else if input.graph != g {
			Panicf("%s: operand #%d is part of graph %q, but operand #0 is part of graph %q -- "+
				"all operands must belong to the same graph", opName, ii, input.graph.name, g.name)
		}
	}
	return g
}

// Graph that holds this Node. It returns nil if the node has been released.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeId {
	return n.id
}

// Type of the node: the operation that created it.
func (n *Node) Type() NodeType {
	return n.nodeType
}

// Value is the forward value of the node.
func (n *Node) Value() float64 {
	return n.value
}

// Grad is the gradient accumulated by Backward calls since the last ZeroGrads.
func (n *Node) Grad() float64 {
	return n.grad
}

// SetValue changes the value of a leaf node in place, preserving its identity.
// It panics for non-leaf nodes, whose value is fixed by their operands.
//
// Nodes already created from this leaf keep their previously computed value: the expression
// must be rebuilt after the parameters change.
func (n *Node) SetValue(value float64) {
	n.AssertValid()
	if n.nodeType != NodeTypeLeaf {
		Panicf("Node.SetValue(%g) called on node #%d of type %s: only leaf nodes can be changed", value, n.id, n.nodeType)
	}
	n.value = value
}

// IsLeaf returns whether the node has no operands.
func (n *Node) IsLeaf() bool {
	return n.numInputs == 0
}

// NumInputs returns the number of operands of the node.
func (n *Node) NumInputs() int {
	return n.numInputs
}

// Input returns the ii-th operand of the node.
func (n *Node) Input(ii int) *Node {
	n.AssertValid()
	if ii < 0 || ii >= n.numInputs {
		Panicf("node #%d (%s) has %d operands, operand #%d requested", n.id, n.nodeType, n.numInputs, ii)
	}
	return n.graph.nodes[n.inputs[ii]]
}

// Inputs are the operands of the node.
func (n *Node) Inputs() []*Node {
	n.AssertValid()
	inputs := make([]*Node, n.numInputs)
	for ii := range inputs {
		inputs[ii] = n.graph.nodes[n.inputs[ii]]
	}
	return inputs
}

// Alpha returns the slope of the negative side of a LeakyRelu node, and 0 for other types.
func (n *Node) Alpha() float64 {
	return n.alpha
}

// AssertValid panics if n is nil, or if it has been released.
func (n *Node) AssertValid() {
	if n == nil {
		Panicf("Node is nil")
	}
	if n.graph == nil {
		Panicf("Node was released (see Graph.Release) and can no longer be used")
	}
}

// Trace returns stack-trace in form of an error, of when the node was created.
// Only available if enabled by Graph.SetTraced(true).
func (n *Node) Trace() error {
	return n.trace
}

// String implements the fmt.Stringer interface.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	if n.graph == nil {
		return "Node(released)"
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "#%d %s", n.id, n.nodeType)
	if n.numInputs > 0 {
		ids := make([]string, n.numInputs)
		for ii := range ids {
			ids[ii] = fmt.Sprintf("#%d", n.inputs[ii])
		}
		_, _ = fmt.Fprintf(&sb, "(%s", strings.Join(ids, ", "))
		if n.nodeType == NodeTypeLeakyRelu {
			_, _ = fmt.Fprintf(&sb, ", alpha=%g", n.alpha)
		}
		sb.WriteString(")")
	}
	_, _ = fmt.Fprintf(&sb, " = %g [grad=%g]", n.value, n.grad)
	return sb.String()
}
