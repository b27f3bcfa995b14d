// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math"
)

// This file implements the operators that create new nodes. Each computes the forward value
// from the current value of its operands, and records the operands and its NodeType.
// The corresponding backward rules are in rev_autodiff.go.

// DefaultLeakyReluAlpha is the slope of the negative side used by LeakyReluDefault.
const DefaultLeakyReluAlpha = 0.1

// Add returns x+y.
func Add(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs("Add", x, y)
	return newNode(g, NodeTypeAdd, x.value+y.value, x, y)
}

// Sub returns x-y.
func Sub(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs("Sub", x, y)
	return newNode(g, NodeTypeSub, x.value-y.value, x, y)
}

// Mul returns x*y.
func Mul(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs("Mul", x, y)
	return newNode(g, NodeTypeMul, x.value*y.value, x, y)
}

// Div returns x/y. Division by zero yields ±Inf or NaN.
func Div(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs("Div", x, y)
	return newNode(g, NodeTypeDiv, x.value/y.value, x, y)
}

// Pow returns x^y.
//
// The gradient with respect to y is only defined for x > 0: otherwise it is NaN (or Inf),
// which only matters if y is itself something being trained.
func Pow(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs("Pow", x, y)
	return newNode(g, NodeTypePow, math.Pow(x.value, y.value), x, y)
}

// Max returns the largest of x and y.
// On a tie, the gradient is routed fully to y.
func Max(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs("Max", x, y)
	value := y.value
	if x.value > y.value {
		value = x.value
	}
	return newNode(g, NodeTypeMax, value, x, y)
}

// Min returns the smallest of x and y.
// On a tie, the gradient is routed fully to x.
func Min(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs("Min", x, y)
	value := x.value
	if x.value > y.value {
		value = y.value
	}
	return newNode(g, NodeTypeMin, value, x, y)
}

// Neg returns -x.
func Neg(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Neg", x)
	return newNode(g, NodeTypeNeg, -x.value, x)
}

// Identity returns a new node with the same value as x, through which the gradient passes
// unchanged.
func Identity(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Identity", x)
	return newNode(g, NodeTypeIdentity, x.value, x)
}

// Sqrt returns the square root of x. It is NaN for negative values.
func Sqrt(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Sqrt", x)
	return newNode(g, NodeTypeSqrt, math.Sqrt(x.value), x)
}

// Exp returns e^x.
func Exp(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Exp", x)
	return newNode(g, NodeTypeExp, math.Exp(x.value), x)
}

// Log returns the natural logarithm of x. It is -Inf for 0 and NaN for negative values.
func Log(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Log", x)
	return newNode(g, NodeTypeLog, math.Log(x.value), x)
}

// Sigmoid returns 1/(1+e^(-x)).
func Sigmoid(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Sigmoid", x)
	return newNode(g, NodeTypeSigmoid, 1.0/(1.0+math.Exp(-x.value)), x)
}

// Tanh returns the hyperbolic tangent of x.
func Tanh(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Tanh", x)
	return newNode(g, NodeTypeTanh, math.Tanh(x.value), x)
}

// Relu returns max(0, x).
// At x == 0 the gradient passes through (it is taken as 1).
func Relu(x *Node) *Node {
	g := validateBuildingGraphFromInputs("Relu", x)
	value := x.value
	if value < 0 {
		value = 0
	}
	return newNode(g, NodeTypeRelu, value, x)
}

// LeakyRelu returns x if x >= 0, and alpha*x otherwise.
func LeakyRelu(x *Node, alpha float64) *Node {
	g := validateBuildingGraphFromInputs("LeakyRelu", x)
	value := x.value
	if value < 0 {
		value *= alpha
	}
	node := newNode(g, NodeTypeLeakyRelu, value, x)
	node.alpha = alpha
	return node
}

// LeakyReluDefault is LeakyRelu with alpha set to DefaultLeakyReluAlpha.
func LeakyReluDefault(x *Node) *Node {
	return LeakyRelu(x, DefaultLeakyReluAlpha)
}

// GreaterThan returns whether the value of x is larger than the value of y.
// It creates no node and has no gradient.
func GreaterThan(x, y *Node) bool {
	_ = validateBuildingGraphFromInputs("GreaterThan", x, y)
	return x.value > y.value
}

// LessThan returns whether the value of x is smaller than the value of y.
// It creates no node and has no gradient.
func LessThan(x, y *Node) bool {
	_ = validateBuildingGraphFromInputs("LessThan", x, y)
	return x.value < y.value
}

// Equal returns whether x and y hold the same value.
// It creates no node and has no gradient.
func Equal(x, y *Node) bool {
	_ = validateBuildingGraphFromInputs("Equal", x, y)
	return x.value == y.value
}
