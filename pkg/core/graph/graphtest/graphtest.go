// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that depend on the graph package.
package graphtest

import (
	"fmt"
	"math"
	"testing"

	"github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"github.com/stretchr/testify/require"
)

// FiniteDifferenceEpsilon is the step used by CheckGradients to estimate derivatives.
const FiniteDifferenceEpsilon = 1e-6

// TestGraphFn builds an expression from the given leaves, and returns its output.
type TestGraphFn func(g *graph.Graph, inputs []*graph.Node) (output *graph.Node)

// buildGraph creates a new graph with one leaf per input value, and builds graphFn on it.
func buildGraph(testName string, graphFn TestGraphFn, inputValues []float64) (leaves []*graph.Node, output *graph.Node) {
	g := graph.NewGraph(testName)
	leaves = xslices.Map(inputValues, func(value float64) *graph.Node { return graph.Leaf(g, value) })
	output = graphFn(g, leaves)
	return
}

// RunTestGraphFn builds graphFn with leaves holding the given input values, and checks that
// the forward value of its output is want.
//
// delta is the margin of value on the difference of output and want values that are acceptable.
// Values of delta <= 0 means only exact equality is accepted. A NaN want only matches NaN.
func RunTestGraphFn(t *testing.T, testName string, graphFn TestGraphFn, inputValues []float64, want float64, delta float64) {
	t.Run(testName, func(t *testing.T) {
		var output *graph.Node
		require.NotPanicsf(t, func() { _, output = buildGraph(testName, graphFn, inputValues) },
			"%s: failed to build graph", testName)
		got := output.Value()
		fmt.Printf("\t%s(%v) = %g\n", testName, inputValues, got)
		if math.IsNaN(want) {
			require.Truef(t, math.IsNaN(got), "%s: wanted NaN, got %g", testName, got)
			return
		}
		if delta <= 0 {
			require.Equalf(t, want, got, "%s: output doesn't match", testName)
			return
		}
		require.InDeltaf(t, want, got, delta, "%s: output doesn't match", testName)
	})
}

// Gradients builds graphFn with leaves holding the given input values, runs graph.Backward on
// its output, and returns the gradient of each of the leaves.
func Gradients(testName string, graphFn TestGraphFn, inputValues []float64) []float64 {
	leaves, output := buildGraph(testName, graphFn, inputValues)
	graph.Backward(output)
	return xslices.Map(leaves, (*graph.Node).Grad)
}

// NumericGradients estimates the gradient of graphFn with respect to each of its inputs using
// central finite differences.
func NumericGradients(testName string, graphFn TestGraphFn, inputValues []float64) []float64 {
	grads := make([]float64, len(inputValues))
	leaves, output := buildGraph(testName, graphFn, inputValues)
	for ii, leaf := range leaves {
		// Leaves are updated in place, and the expression rebuilt on the same leaves.
		mark := output.Graph().Mark()
		leaf.SetValue(inputValues[ii] + FiniteDifferenceEpsilon)
		plus := graphFn(leaf.Graph(), leaves).Value()
		leaf.SetValue(inputValues[ii] - FiniteDifferenceEpsilon)
		minus := graphFn(leaf.Graph(), leaves).Value()
		leaf.SetValue(inputValues[ii])
		output.Graph().Release(mark)
		grads[ii] = (plus - minus) / (2 * FiniteDifferenceEpsilon)
	}
	return grads
}

// CheckGradients compares the gradients computed by graph.Backward with a finite differences
// estimate, for the given input values. delta is the accepted absolute difference.
func CheckGradients(t *testing.T, testName string, graphFn TestGraphFn, inputValues []float64, delta float64) {
	t.Run(testName, func(t *testing.T) {
		var got, want []float64
		require.NotPanicsf(t, func() {
			got = Gradients(testName, graphFn, inputValues)
			want = NumericGradients(testName, graphFn, inputValues)
		}, "%s: failed to compute gradients", testName)
		for ii := range inputValues {
			require.InDeltaf(t, want[ii], got[ii], delta,
				"%s(%v): gradient of input #%d: finite differences=%g, backward=%g", testName, inputValues, ii, want[ii], got[ii])
		}
	})
}
