// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"math"
	"testing"

	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const margin = 1e-4

func unaryFn(op func(x *Node) *Node) graphtest.TestGraphFn {
	return func(_ *Graph, inputs []*Node) *Node { return op(inputs[0]) }
}

func binaryFn(op func(x, y *Node) *Node) graphtest.TestGraphFn {
	return func(_ *Graph, inputs []*Node) *Node { return op(inputs[0], inputs[1]) }
}

func TestForwardValues(t *testing.T) {
	graphtest.RunTestGraphFn(t, "Add", binaryFn(Add), []float64{2, 3}, 5, 0)
	graphtest.RunTestGraphFn(t, "Sub", binaryFn(Sub), []float64{2, 3}, -1, 0)
	graphtest.RunTestGraphFn(t, "Mul", binaryFn(Mul), []float64{2, 3}, 6, 0)
	graphtest.RunTestGraphFn(t, "Div", binaryFn(Div), []float64{3, 2}, 1.5, 0)
	graphtest.RunTestGraphFn(t, "Div-by-zero", binaryFn(Div), []float64{1, 0}, math.Inf(1), 0)
	graphtest.RunTestGraphFn(t, "Pow", binaryFn(Pow), []float64{2, 3}, 8, margin)
	graphtest.RunTestGraphFn(t, "Max", binaryFn(Max), []float64{2, 3}, 3, 0)
	graphtest.RunTestGraphFn(t, "Min", binaryFn(Min), []float64{2, 3}, 2, 0)
	graphtest.RunTestGraphFn(t, "Neg", unaryFn(Neg), []float64{2}, -2, 0)
	graphtest.RunTestGraphFn(t, "Identity", unaryFn(Identity), []float64{2}, 2, 0)
	graphtest.RunTestGraphFn(t, "Sqrt", unaryFn(Sqrt), []float64{9}, 3, margin)
	graphtest.RunTestGraphFn(t, "Exp", unaryFn(Exp), []float64{1}, math.E, margin)
	graphtest.RunTestGraphFn(t, "Log", unaryFn(Log), []float64{math.E}, 1, margin)
	graphtest.RunTestGraphFn(t, "Sigmoid", unaryFn(Sigmoid), []float64{0}, 0.5, margin)
	graphtest.RunTestGraphFn(t, "Tanh", unaryFn(Tanh), []float64{0.5}, math.Tanh(0.5), margin)
	graphtest.RunTestGraphFn(t, "Relu-positive", unaryFn(Relu), []float64{1.5}, 1.5, 0)
	graphtest.RunTestGraphFn(t, "Relu-negative", unaryFn(Relu), []float64{-1.5}, 0, 0)
	graphtest.RunTestGraphFn(t, "LeakyRelu", unaryFn(LeakyReluDefault), []float64{-2}, -0.2, margin)
	graphtest.RunTestGraphFn(t, "LeakyRelu-positive", unaryFn(LeakyReluDefault), []float64{2}, 2, 0)
	graphtest.RunTestGraphFn(t, "Square", unaryFn(Square), []float64{-3}, 9, 0)
	graphtest.RunTestGraphFn(t, "Inverse", unaryFn(Inverse), []float64{4}, 0.25, 0)
	graphtest.RunTestGraphFn(t, "AddScalar", unaryFn(func(x *Node) *Node { return AddScalar(x, 1) }), []float64{4}, 5, 0)
	graphtest.RunTestGraphFn(t, "ReduceMean", func(_ *Graph, inputs []*Node) *Node { return ReduceMean(inputs...) },
		[]float64{1, 2, 3, 6}, 3, 0)
	graphtest.RunTestGraphFn(t, "ReduceMax", func(_ *Graph, inputs []*Node) *Node { return ReduceMax(inputs...) },
		[]float64{1, 7, 3, 6}, 7, 0)
	require.Panics(t, func() { _ = ReduceSum() })
}

// TestDomainErrors checks that out-of-domain values are not reported, and produce NaN/Inf instead.
func TestDomainErrors(t *testing.T) {
	graphtest.RunTestGraphFn(t, "Log(-1)", unaryFn(Log), []float64{-1}, math.NaN(), 0)
	graphtest.RunTestGraphFn(t, "Log(0)", unaryFn(Log), []float64{0}, math.Inf(-1), 0)
	graphtest.RunTestGraphFn(t, "Sqrt(-1)", unaryFn(Sqrt), []float64{-1}, math.NaN(), 0)
	graphtest.RunTestGraphFn(t, "Pow(-8, 1/3)", binaryFn(Pow), []float64{-8, 1.0 / 3.0}, math.NaN(), 0)

	// Gradients also become NaN (or Inf), without panicking.
	grads := graphtest.Gradients("Log(-1)", unaryFn(Log), []float64{-1})
	assert.Equal(t, -1.0, grads[0])
	grads = graphtest.Gradients("Sqrt(-1)", unaryFn(Sqrt), []float64{-1})
	assert.True(t, math.IsNaN(grads[0]))
	grads = graphtest.Gradients("Sqrt(0)", unaryFn(Sqrt), []float64{0})
	assert.True(t, math.IsInf(grads[0], 1))
	grads = graphtest.Gradients("Pow(-2, 2)", binaryFn(Pow), []float64{-2, 2})
	assert.Equal(t, -4.0, grads[0])
	assert.True(t, math.IsNaN(grads[1]), "gradient of the exponent is not defined for negative bases")
	grads = graphtest.Gradients("Div(1, 0)", binaryFn(Div), []float64{1, 0})
	assert.True(t, math.IsInf(grads[0], 1))
}

func TestGradients(t *testing.T) {
	type testCase struct {
		name   string
		fn     graphtest.TestGraphFn
		inputs [][]float64
	}
	testCases := []testCase{
		{"Add", binaryFn(Add), [][]float64{{2, 3}, {-1e-3, 0}}},
		{"Sub", binaryFn(Sub), [][]float64{{2, 3}, {-1e-3, 0}}},
		{"Mul", binaryFn(Mul), [][]float64{{2, 3}, {-0.5, 1e-3}}},
		{"Div", binaryFn(Div), [][]float64{{3, 2}, {-0.5, 0.99}, {1e-3, -4}}},
		{"Pow", binaryFn(Pow), [][]float64{{2, 3}, {0.99, 2.5}, {1.5, -1}}},
		{"Max", binaryFn(Max), [][]float64{{2, 3}, {3, -2}}},
		{"Min", binaryFn(Min), [][]float64{{2, 3}, {3, -2}}},
		{"Neg", unaryFn(Neg), [][]float64{{2}, {-1e-3}}},
		{"Identity", unaryFn(Identity), [][]float64{{2}}},
		{"Sqrt", unaryFn(Sqrt), [][]float64{{9}, {0.99}, {1e-2}}},
		{"Exp", unaryFn(Exp), [][]float64{{1}, {-3}, {1e-3}}},
		{"Log", unaryFn(Log), [][]float64{{math.E}, {0.99}, {0.1}}},
		{"Sigmoid", unaryFn(Sigmoid), [][]float64{{0}, {-3}, {2}}},
		{"Tanh", unaryFn(Tanh), [][]float64{{0}, {-0.99}, {2}}},
		{"Relu", unaryFn(Relu), [][]float64{{1.5}, {-1.5}, {1e-3}}},
		{"LeakyRelu", unaryFn(LeakyReluDefault), [][]float64{{1.5}, {-1.5}, {-1e-3}}},
		{"LeakyRelu(alpha=0.3)", unaryFn(func(x *Node) *Node { return LeakyRelu(x, 0.3) }), [][]float64{{-2}}},
		{"Square", unaryFn(Square), [][]float64{{-3}, {0.5}}},
		{"Inverse", unaryFn(Inverse), [][]float64{{4}, {-0.5}}},
		{"PowScalar", unaryFn(func(x *Node) *Node { return PowScalar(x, 2.5) }), [][]float64{{1.2}}},
		{"Polynomial", func(_ *Graph, inputs []*Node) *Node {
			x, y := inputs[0], inputs[1]
			// x^2*y + 3*x*y - y/x
			return Sub(Add(Mul(Square(x), y), MulScalar(Mul(x, y), 3)), Div(y, x))
		}, [][]float64{{1.5, -2}, {-0.7, 0.3}}},
		{"SoftmaxCrossEntropy", func(_ *Graph, inputs []*Node) *Node {
			// -log(softmax(inputs)[0])
			logitsMax := ReduceMax(inputs...)
			var exps []*Node
			for _, logit := range inputs {
				exps = append(exps, Exp(Sub(logit, logitsMax)))
			}
			return Sub(Add(Log(ReduceSum(exps...)), logitsMax), inputs[0])
		}, [][]float64{{0.5, -1, 2}, {3, 0.1, -0.1}}},
	}
	for _, tc := range testCases {
		for _, inputs := range tc.inputs {
			graphtest.CheckGradients(t, tc.name, tc.fn, inputs, margin)
		}
	}
}

func TestMaxMinTies(t *testing.T) {
	grads := graphtest.Gradients("Max", binaryFn(Max), []float64{2, 2})
	assert.Equal(t, []float64{0, 1}, grads, "Max ties route the gradient to the second operand")
	grads = graphtest.Gradients("Min", binaryFn(Min), []float64{2, 2})
	assert.Equal(t, []float64{1, 0}, grads, "Min ties route the gradient to the first operand")

	grads = graphtest.Gradients("Max", binaryFn(Max), []float64{3, 2})
	assert.Equal(t, []float64{1, 0}, grads)
	grads = graphtest.Gradients("Min", binaryFn(Min), []float64{3, 2})
	assert.Equal(t, []float64{0, 1}, grads)

	grads = graphtest.Gradients("Relu(0)", unaryFn(Relu), []float64{0})
	assert.Equal(t, []float64{1}, grads)
	grads = graphtest.Gradients("LeakyRelu(0)", unaryFn(LeakyReluDefault), []float64{0})
	assert.Equal(t, []float64{1}, grads)
}

func TestComparisons(t *testing.T) {
	g := NewGraph("TestComparisons")
	a := Leaf(g, 1)
	b := Leaf(g, 2)
	numNodes := g.NumNodes()
	assert.True(t, LessThan(a, b))
	assert.False(t, GreaterThan(a, b))
	assert.False(t, Equal(a, b))
	assert.True(t, Equal(a, Leaf(g, 1)))
	assert.Equal(t, numNodes+1, g.NumNodes(), "comparisons don't create nodes")
	require.Panics(t, func() { _ = Equal(a, nil) })
}
