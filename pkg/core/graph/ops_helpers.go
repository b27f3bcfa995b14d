// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	. "github.com/gomlx/exceptions"
)

// Scalar creates a new leaf with the given value in the same graph as x.
// It is used to combine nodes with constants.
func Scalar(x *Node, value float64) *Node {
	x.AssertValid()
	return Leaf(x.graph, value)
}

// AddScalar returns x+c, where c is a constant.
func AddScalar(x *Node, c float64) *Node {
	return Add(x, Scalar(x, c))
}

// MulScalar returns x*c, where c is a constant.
func MulScalar(x *Node, c float64) *Node {
	return Mul(x, Scalar(x, c))
}

// DivScalar returns x/c, where c is a constant.
func DivScalar(x *Node, c float64) *Node {
	return Div(x, Scalar(x, c))
}

// PowScalar returns x^c, where c is a constant.
func PowScalar(x *Node, c float64) *Node {
	return Pow(x, Scalar(x, c))
}

// Square returns x*x.
func Square(x *Node) *Node {
	return Mul(x, x)
}

// Inverse returns 1/x.
func Inverse(x *Node) *Node {
	return Div(Scalar(x, 1), x)
}

// ReduceSum returns the sum of all the given nodes, added left to right.
// It panics if nodes is empty.
func ReduceSum(nodes ...*Node) *Node {
	if len(nodes) == 0 {
		Panicf("ReduceSum requires at least one node")
	}
	sum := nodes[0]
	for _, node := range nodes[1:] {
		sum = Add(sum, node)
	}
	return sum
}

// ReduceMean returns the mean of the given nodes.
// It panics if nodes is empty.
func ReduceMean(nodes ...*Node) *Node {
	if len(nodes) == 0 {
		Panicf("ReduceMean requires at least one node")
	}
	return DivScalar(ReduceSum(nodes...), float64(len(nodes)))
}

// ReduceMax returns the largest of the given nodes. It panics if nodes is empty.
func ReduceMax(nodes ...*Node) *Node {
	if len(nodes) == 0 {
		Panicf("ReduceMax requires at least one node")
	}
	maxNode := nodes[0]
	for _, node := range nodes[1:] {
		maxNode = Max(maxNode, node)
	}
	return maxNode
}
