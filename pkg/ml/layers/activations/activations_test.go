// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package activations

import (
	"math"
	"testing"

	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/core/graph/graphtest"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const margin = 1e-5

func applyFn(activation Type) graphtest.TestGraphFn {
	return func(g *Graph, inputs []*Node) *Node {
		return Apply(activation, inputs[0])
	}
}

func TestApply(t *testing.T) {
	for _, x := range []float64{-3, -1, 0, 2} {
		graphtest.RunTestGraphFn(t, "Relu", applyFn(TypeRelu), []float64{x}, math.Max(x, 0), 0)
		graphtest.RunTestGraphFn(t, "Identity", applyFn(TypeNone), []float64{x}, x, 0)
		graphtest.RunTestGraphFn(t, "Sigmoid", applyFn(TypeSigmoid), []float64{x}, 1/(1+math.Exp(-x)), margin)
		graphtest.RunTestGraphFn(t, "Tanh", applyFn(TypeTanh), []float64{x}, math.Tanh(x), margin)
	}
	graphtest.RunTestGraphFn(t, "LeakyRelu", applyFn(TypeLeakyRelu), []float64{-3}, -0.3, margin)
	graphtest.RunTestGraphFn(t, "Swish", applyFn(TypeSwish), []float64{-1}, -0.26894143, margin)
	graphtest.RunTestGraphFn(t, "Silu", applyFn(TypeSilu), []float64{2}, 1.7615942, margin)
	graphtest.RunTestGraphFn(t, "Selu-positive", applyFn(TypeSelu), []float64{2}, 2*SeluScale, margin)
	graphtest.RunTestGraphFn(t, "Selu-negative", applyFn(TypeSelu), []float64{-1},
		SeluScale*SeluAlpha*(math.Exp(-1)-1), margin)
	graphtest.RunTestGraphFn(t, "GeluApprox", applyFn(TypeGeluApprox), []float64{1}, 0.8411920, margin)
	graphtest.RunTestGraphFn(t, "GeluApprox-negative", applyFn(TypeGeluApprox), []float64{-1}, -0.1588080, margin)
}

func TestApplyNoneIsNoOp(t *testing.T) {
	g := NewGraph("TestApplyNoneIsNoOp")
	x := Leaf(g, 3)
	assert.Equal(t, x, Apply(TypeNone, x))
	assert.Equal(t, 1, g.NumNodes())
}

func TestGradients(t *testing.T) {
	for _, activation := range TypeValues() {
		for _, x := range []float64{-2.5, -0.3, 0.7, 3} {
			graphtest.CheckGradients(t, activation.String(), applyFn(activation), []float64{x}, 1e-4)
		}
	}
}

func TestFromName(t *testing.T) {
	assert.Equal(t, TypeNone, FromName(""))
	assert.Equal(t, TypeNone, FromName("identity"))
	assert.Equal(t, TypeLeakyRelu, FromName("leaky_relu"))
	assert.Equal(t, TypeGeluApprox, FromName("gelu_approx"))
	assert.Equal(t, "leaky_relu", TypeLeakyRelu.String())
	require.Panics(t, func() { FromName("not_an_activation") })
}

func TestApplyFromContext(t *testing.T) {
	ctx := context.New()
	x := Leaf(ctx.Graph(), -2)
	assert.Equal(t, 0.0, ApplyFromContext(ctx, x).Value())

	ctx.SetParam(ParamActivation, "tanh")
	assert.InDelta(t, math.Tanh(-2), ApplyFromContext(ctx, x).Value(), margin)

	ctx.SetParam(ParamActivation, "none")
	assert.Equal(t, x, ApplyFromContext(ctx, x))
}

func TestApplyAll(t *testing.T) {
	g := NewGraph("TestApplyAll")
	nodes := []*Node{Leaf(g, -1), Leaf(g, 2)}
	outputs := ApplyAll(TypeRelu, nodes)
	require.Len(t, outputs, 2)
	assert.Equal(t, 0.0, outputs[0].Value())
	assert.Equal(t, 2.0, outputs[1].Value())
}
