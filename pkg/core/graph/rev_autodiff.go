// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math"

	. "github.com/gomlx/exceptions"
)

// VJP returns the vector-jacobian-product of node with respect to each of its operands.
//
// v is the gradient of the root with respect to node (its "adjoint"), and the returned array
// holds, for each operand ii < node.NumInputs(), the contribution v * ∂node/∂operand[ii].
// The operands' current values and node's own value are available through node.
type VJP func(node *Node, v float64) [MaxInputs]float64

// VJPRegistration maps each NodeType to its VJP. It can be extended, but an entry must exist
// for every NodeType that is not a leaf, or Backward panics.
var VJPRegistration = map[NodeType]VJP{
	NodeTypeAdd:       addVJP,
	NodeTypeSub:       subVJP,
	NodeTypeNeg:       negVJP,
	NodeTypeIdentity:  identityVJP,
	NodeTypeMul:       mulVJP,
	NodeTypeDiv:       divVJP,
	NodeTypePow:       powVJP,
	NodeTypeSqrt:      sqrtVJP,
	NodeTypeExp:       expVJP,
	NodeTypeLog:       logVJP,
	NodeTypeMax:       maxVJP,
	NodeTypeMin:       minVJP,
	NodeTypeSigmoid:   sigmoidVJP,
	NodeTypeTanh:      tanhVJP,
	NodeTypeRelu:      reluVJP,
	NodeTypeLeakyRelu: leakyReluVJP,
}

// operandValues returns the values of the first two operands of node (0 if absent).
func operandValues(node *Node) (a, b float64) {
	nodes := node.graph.nodes
	if node.numInputs > 0 {
		a = nodes[node.inputs[0]].value
	}
	if node.numInputs > 1 {
		b = nodes[node.inputs[1]].value
	}
	return
}

func addVJP(_ *Node, v float64) [MaxInputs]float64 {
	return [MaxInputs]float64{v, v}
}

func subVJP(_ *Node, v float64) [MaxInputs]float64 {
	return [MaxInputs]float64{v, -v}
}

func negVJP(_ *Node, v float64) [MaxInputs]float64 {
	return [MaxInputs]float64{-v}
}

func identityVJP(_ *Node, v float64) [MaxInputs]float64 {
	return [MaxInputs]float64{v}
}

func mulVJP(node *Node, v float64) [MaxInputs]float64 {
	a, b := operandValues(node)
	return [MaxInputs]float64{v * b, v * a}
}

func divVJP(node *Node, v float64) [MaxInputs]float64 {
	a, b := operandValues(node)
	return [MaxInputs]float64{v / b, -v * a / (b * b)}
}

// powVJP: d(a^b)/da = b*a^(b-1) and d(a^b)/db = a^b*ln(a).
func powVJP(node *Node, v float64) [MaxInputs]float64 {
	a, b := operandValues(node)
	return [MaxInputs]float64{
		v * b * math.Pow(a, b-1),
		v * node.value * math.Log(a),
	}
}

func sqrtVJP(node *Node, v float64) [MaxInputs]float64 {
	return [MaxInputs]float64{v / (2 * node.value)}
}

func expVJP(node *Node, v float64) [MaxInputs]float64 {
	return [MaxInputs]float64{v * node.value}
}

func logVJP(node *Node, v float64) [MaxInputs]float64 {
	a, _ := operandValues(node)
	return [MaxInputs]float64{v / a}
}

// maxVJP routes the gradient to the larger operand, and to the second one on a tie.
func maxVJP(node *Node, v float64) [MaxInputs]float64 {
	a, b := operandValues(node)
	if a > b {
		return [MaxInputs]float64{v, 0}
	}
	return [MaxInputs]float64{0, v}
}

// minVJP routes the gradient to the smaller operand, and to the first one on a tie.
func minVJP(node *Node, v float64) [MaxInputs]float64 {
	a, b := operandValues(node)
	if a > b {
		return [MaxInputs]float64{0, v}
	}
	return [MaxInputs]float64{v, 0}
}

func sigmoidVJP(node *Node, v float64) [MaxInputs]float64 {
	c := node.value
	return [MaxInputs]float64{v * c * (1 - c)}
}

func tanhVJP(node *Node, v float64) [MaxInputs]float64 {
	c := node.value
	return [MaxInputs]float64{v * (1 - c*c)}
}

func reluVJP(node *Node, v float64) [MaxInputs]float64 {
	a, _ := operandValues(node)
	if a >= 0 {
		return [MaxInputs]float64{v}
	}
	return [MaxInputs]float64{0}
}

func leakyReluVJP(node *Node, v float64) [MaxInputs]float64 {
	a, _ := operandValues(node)
	if a >= 0 {
		return [MaxInputs]float64{v}
	}
	return [MaxInputs]float64{node.alpha * v}
}

// TopologicalOrder returns every node reachable from root, each exactly once, ordered so that
// every node comes after all of its operands (root is last).
//
// It uses an explicit stack, so arbitrarily deep expressions don't exhaust the goroutine stack.
func TopologicalOrder(root *Node) []*Node {
	root.AssertValid()
	g := root.graph
	type frame struct {
		id       NodeId
		expanded bool
	}
	visited := make([]bool, root.id+1)
	order := make([]*Node, 0, root.id+1)
	stack := []frame{{id: root.id}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.expanded {
			order = append(order, g.nodes[top.id])
			stack = stack[:len(stack)-1]
			continue
		}
		if visited[top.id] {
			stack = stack[:len(stack)-1]
			continue
		}
		visited[top.id] = true
		top.expanded = true
		node := g.nodes[top.id]
		// Push operands in reverse, so the first operand is visited first.
		for ii := node.numInputs - 1; ii >= 0; ii-- {
			inputId := node.inputs[ii]
			if !visited[inputId] {
				stack = append(stack, frame{id: inputId})
			}
		}
	}
	return order
}

// Backward accumulates into every node reachable from root the partial derivative of root with
// respect to it. The gradient of root itself is set to 1.
//
// Gradients of the other nodes are added (+=) to whatever was there before: call
// Graph.ZeroGrads (or ZeroGrads on the parameters) before each new Backward, unless
// accumulation is intended. Two calls without zeroing in between double the gradients.
// Nodes not reachable from root are untouched.
//
// It panics if root is nil or was released, or if a reachable node has no registered VJP.
// See TryBackward for a version that returns an error.
func Backward(root *Node) {
	if root == nil {
		Panicf("Backward: root node is nil")
	}
	if root.graph == nil {
		Panicf("Backward: root node was released (see Graph.Release) and can no longer be used")
	}
	order := TopologicalOrder(root)

	// adjoints hold the contributions of this call only, so that previously accumulated
	// gradients of intermediate nodes don't leak into their operands.
	adjoints := make([]float64, root.id+1)
	adjoints[root.id] = 1.0
	for ii := len(order) - 1; ii >= 0; ii-- {
		node := order[ii]
		if node.numInputs == 0 {
			continue
		}
		vjpFn, found := VJPRegistration[node.nodeType]
		if !found || vjpFn == nil {
			Panicf("Backward: no VJP registered for node #%d of type %s", node.id, node.nodeType)
		}
		contributions := vjpFn(node, adjoints[node.id])
		for inputIdx := range node.numInputs {
			adjoints[node.inputs[inputIdx]] += contributions[inputIdx]
		}
	}
	for _, node := range order {
		if node == root {
			continue
		}
		node.grad += adjoints[node.id]
	}
	root.grad = 1.0
}

// TryBackward is like Backward, but returns an error instead of panicking.
func TryBackward(root *Node) error {
	return TryCatch[error](func() { Backward(root) })
}
