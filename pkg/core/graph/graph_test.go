// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

func TestMain(m *testing.M) {
	fmt.Println(">> TestMain():")
	flag.Parse()
	exitCode := m.Run()
	fmt.Println(">> TestMain(): finished")
	os.Exit(exitCode)
}

func TestLeaf(t *testing.T) {
	g := NewGraph("TestLeaf")
	x := Leaf(g, 3.5)
	assert.Equal(t, 3.5, x.Value())
	assert.Equal(t, 0.0, x.Grad())
	assert.True(t, x.IsLeaf())
	assert.Equal(t, NodeTypeLeaf, x.Type())
	assert.Equal(t, NodeId(0), x.Id())
	assert.Equal(t, g, x.Graph())
	assert.Empty(t, x.Inputs())
	assert.Equal(t, 1, g.NumNodes())

	x.SetValue(-1)
	assert.Equal(t, -1.0, x.Value())
	assert.Equal(t, NodeId(0), x.Id(), "SetValue must preserve the identity of the node")

	y := Mul(x, x)
	assert.False(t, y.IsLeaf())
	assert.Equal(t, []*Node{x, x}, y.Inputs())
	assert.Equal(t, x, y.Input(1))
	require.Panics(t, func() { _ = y.Input(2) })
	require.Panics(t, func() { y.SetValue(1) }, "SetValue on a non-leaf node should panic")
	require.Panics(t, func() { Leaf(nil, 1) })
}

func TestSetValueDoesNotUpdateDerivedNodes(t *testing.T) {
	g := NewGraph("TestSetValue")
	x := Leaf(g, 2)
	y := Square(x)
	x.SetValue(3)
	assert.Equal(t, 4.0, y.Value(), "nodes are not recomputed when a leaf changes")
	assert.Equal(t, 9.0, Square(x).Value(), "new nodes see the new value")
}

func TestNodeById(t *testing.T) {
	g := NewGraph("TestNodeById")
	a := Leaf(g, 1)
	b := Leaf(g, 2)
	c := Add(a, b)
	assert.Equal(t, c, g.NodeById(c.Id()))
	assert.Equal(t, a, g.NodeById(0))
	require.Panics(t, func() { _ = g.NodeById(3) })
	require.Panics(t, func() { _ = g.NodeById(InvalidNodeId) })
}

func TestForeignGraph(t *testing.T) {
	g0 := NewGraph("g0")
	g1 := NewGraph("g1")
	a := Leaf(g0, 1)
	b := Leaf(g1, 2)
	err := exceptions.TryCatch[error](func() { _ = Add(a, b) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same graph")

	err = exceptions.TryCatch[error](func() { _ = Mul(a, nil) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operand #1 is nil")
}

func TestMarkAndRelease(t *testing.T) {
	g := NewGraph("TestMarkAndRelease")
	w := Leaf(g, 2)
	mark := g.Mark()
	assert.Equal(t, NodeId(1), mark)

	for step := range 3 {
		x := Leaf(g, float64(step))
		y := Mul(w, x)
		require.Equal(t, 3, g.NumNodes())
		Backward(y)
		assert.Equal(t, float64(step), w.Grad())
		g.Release(mark)
		require.Equal(t, 1, g.NumNodes())
		w.SetValue(w.Value() - 0.1)
		g.ZeroGrads()

		// Released nodes can no longer be used.
		assert.Nil(t, y.Graph())
		assert.Equal(t, InvalidNodeId, y.Id())
		assert.Equal(t, "Node(released)", y.String())
		require.Panics(t, func() { _ = Add(w, y) })
		require.Panics(t, func() { Backward(y) })
		for _, accessor := range []func(){
			func() { _ = y.Input(0) },
			func() { _ = y.Inputs() },
		} {
			err := exceptions.TryCatch[error](accessor)
			require.ErrorContains(t, err, "released")
		}
		require.Error(t, TryBackward(x))
	}
	assert.InDelta(t, 1.7, w.Value(), 1e-12)
	require.Panics(t, func() { g.Release(5) })
}

func TestTraced(t *testing.T) {
	g := NewGraph("TestTraced")
	x := Leaf(g, 1)
	assert.NoError(t, x.Trace())
	g.SetTraced(true)
	assert.True(t, g.IsTraced())
	y := Exp(x)
	require.Error(t, y.Trace())
	assert.Contains(t, fmt.Sprintf("%+v", y.Trace()), "TestTraced")
}

func TestString(t *testing.T) {
	g := NewGraph("TestString")
	x := Leaf(g, -2)
	y := LeakyRelu(x, 0.5)
	Backward(y)
	assert.Equal(t, "#0 Leaf = -2 [grad=0.5]", x.String())
	assert.Equal(t, "#1 LeakyRelu(#0, alpha=0.5) = -1 [grad=1]", y.String())
	var nilNode *Node
	assert.Equal(t, "Node(nil)", nilNode.String())

	str := g.String()
	fmt.Println(str)
	lines := strings.Split(str, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `Graph "TestString": 2 nodes`, lines[0])
}

func TestNodeType(t *testing.T) {
	assert.Equal(t, "LeakyRelu", NodeTypeLeakyRelu.String())
	nodeType, err := NodeTypeString("Sigmoid")
	require.NoError(t, err)
	assert.Equal(t, NodeTypeSigmoid, nodeType)
	_, err = NodeTypeString("Softmax")
	require.Error(t, err)
	for _, nodeType := range NodeTypeValues() {
		if nodeType == NodeTypeInvalid || nodeType == NodeTypeLeaf {
			continue
		}
		assert.Containsf(t, VJPRegistration, nodeType, "missing VJP for %s", nodeType)
	}
}
