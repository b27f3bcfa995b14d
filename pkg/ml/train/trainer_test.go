// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"math"
	"testing"

	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/core/graph/nanlogger"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/layers/activations"
	"github.com/gomlx/scalargrad/pkg/ml/nn"
	"github.com/gomlx/scalargrad/pkg/ml/train/losses"
	"github.com/gomlx/scalargrad/pkg/ml/train/metrics"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceDataset yields the given batches in order, optionally looping.
type sliceDataset struct {
	batches [][]Example
	next    int
	loop    bool
}

func (ds *sliceDataset) Name() string { return "sliceDataset" }
func (ds *sliceDataset) Reset()       { ds.next = 0 }
func (ds *sliceDataset) Yield() ([]Example, error) {
	if ds.next >= len(ds.batches) {
		if !ds.loop {
			return nil, io.EOF
		}
		ds.next = 0
	}
	batch := ds.batches[ds.next]
	ds.next++
	return batch, nil
}

// twoClassesBatch is trivially separable: the class is the position of the 1.
func twoClassesBatch() []Example {
	return []Example{
		{Inputs: []float64{1, 0}, Labels: []float64{1, 0}},
		{Inputs: []float64{0, 1}, Labels: []float64{0, 1}},
		{Inputs: []float64{1, 0.1}, Labels: []float64{1, 0}},
		{Inputs: []float64{0.1, 1}, Labels: []float64{0, 1}},
	}
}

func newLinearClassifier(t *testing.T) (*context.Context, *Trainer) {
	ctx := context.New()
	ctx.SetParam(context.ParamInitialSeed, int64(42))
	mlp := nn.NewMLP(ctx.In("model"), 2, []int{2}, []activations.Type{activations.TypeNone})
	modelFn := func(_ *context.Context, inputs []*Node) []*Node { return mlp.Forward(inputs) }
	trainer := NewTrainer(ctx, modelFn, losses.CategoricalCrossEntropyLogits,
		optimizers.Adam().LearningRate(0.05).Done(),
		[]metrics.Interface{metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.05)},
		[]metrics.Interface{metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "acc")})
	require.Len(t, trainer.TrainMetrics(), 3)
	require.Len(t, trainer.EvalMetrics(), 2)
	return ctx, trainer
}

func TestTrainer(t *testing.T) {
	ctx, trainer := newLinearClassifier(t)
	g := ctx.Graph()
	batch := twoClassesBatch()
	ds := &sliceDataset{batches: [][]Example{batch}}

	initial, err := trainer.Eval(ds)
	require.NoError(t, err)
	require.Len(t, initial, 2)

	values, err := trainer.TrainStep(batch)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.InDelta(t, initial[0], values[0], 1e-9, "the first step loss is computed before the update")
	assert.Equal(t, int64(1), trainer.GlobalStep())

	// Optimizer state and global step were created in the first step: from now on the graph doesn't grow.
	numNodes := g.NumNodes()
	numVars := ctx.NumVariables()
	for range 100 {
		_, err = trainer.TrainStep(batch)
		require.NoError(t, err)
	}
	assert.Equal(t, numNodes, g.NumNodes())
	assert.Equal(t, numVars, ctx.NumVariables())
	assert.Equal(t, int64(101), trainer.GlobalStep())

	final, err := trainer.Eval(ds)
	require.NoError(t, err)
	assert.Less(t, final[0], initial[0])
	assert.Equal(t, 1.0, final[1], "accuracy on a trivially separable dataset")
	g.AssertValid()
}

func TestTrainerLazyVariables(t *testing.T) {
	ctx := context.New()
	// The variable is created the first time the model is built, during the first step.
	modelFn := func(ctx *context.Context, inputs []*Node) []*Node {
		w := ctx.In("model").Checked(false).VariableWithValue("w", 0.5)
		return []*Node{Mul(w.Node(), inputs[0])}
	}
	trainer := NewTrainer(ctx, modelFn, losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().LearningRate(0.1).Done(), nil, nil)
	batch := []Example{{Inputs: []float64{1}, Labels: []float64{2}}}

	_, err := trainer.TrainStep(batch)
	require.NoError(t, err)
	w := ctx.GetVariableByScopeAndName("/model", "w")
	require.NotNil(t, w)
	require.NotNil(t, w.Node().Graph(), "variable created during the step must not be released")
	// loss=(w-2)^2, grad=2(w-2)=-3, w=0.5+0.1*3
	assert.InDelta(t, 0.8, w.Value(), 1e-9)

	numVars := ctx.NumVariables()
	_, err = trainer.TrainStep(batch)
	require.NoError(t, err)
	assert.Equal(t, numVars, ctx.NumVariables())
	assert.InDelta(t, 0.8+0.1*2*1.2, w.Value(), 1e-9)
}

func TestTrainerNanLogger(t *testing.T) {
	ctx := context.New()
	w := ctx.VariableWithValue("w", 1.0)
	modelFn := func(_ *context.Context, inputs []*Node) []*Node {
		return []*Node{Log(Mul(w.Node(), inputs[0]))}
	}
	batch := []Example{{Inputs: []float64{-1}, Labels: []float64{0}}}

	// Without a NanLogger the step succeeds, and the loop catches the NaN loss.
	trainer := NewTrainer(ctx, modelFn, losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().Done(), nil, nil)
	values, err := trainer.TrainStep(batch)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(values[0]))
	loop := NewLoop(trainer)
	_, err = loop.RunSteps(&sliceDataset{batches: [][]Example{batch}, loop: true}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NaN")

	// With a NanLogger the step fails, and the optimizer is not called.
	w.SetValue(1.0)
	var numHandled int
	trainer.WithNanLogger(nanlogger.New().WithHandler(func(*nanlogger.Trace) { numHandled++ }))
	globalStep := trainer.GlobalStep()
	_, err = trainer.TrainStep(batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loss")
	assert.Equal(t, 1, numHandled)
	assert.Equal(t, globalStep, trainer.GlobalStep())
	assert.Equal(t, 1.0, w.Value())
	assert.Equal(t, 0, trainer.NanLogger().NumTraced())
}

func TestTrainerErrors(t *testing.T) {
	ctx, trainer := newLinearClassifier(t)
	_, err := trainer.TrainStep(nil)
	require.Error(t, err)

	// Wrong number of labels makes the loss panic, which is returned as an error.
	numNodes := ctx.Graph().NumNodes()
	_, err = trainer.TrainStep([]Example{{Inputs: []float64{1, 0}, Labels: []float64{1, 0, 0}}})
	require.Error(t, err)
	assert.Equal(t, numNodes, ctx.Graph().NumNodes(), "nodes of a failed step are released")

	_, err = trainer.Eval(&sliceDataset{})
	require.Error(t, err)
}
