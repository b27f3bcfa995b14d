// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunSteps(t *testing.T) {
	_, trainer := newLinearClassifier(t)
	loop := NewLoop(trainer)
	ds := &sliceDataset{batches: [][]Example{twoClassesBatch()}, loop: true}

	var order []string
	var startSteps, endSteps []int
	var numSteps, numEvery int
	loop.OnStart("second", 1, func(loop *Loop, _ Dataset) error {
		order = append(order, "second")
		return nil
	})
	loop.OnStart("first", -1, func(loop *Loop, _ Dataset) error {
		order = append(order, "first")
		startSteps = append(startSteps, loop.StartStep)
		endSteps = append(endSteps, loop.EndStep)
		return nil
	})
	loop.OnStep("count", 0, func(loop *Loop, metrics []float64) error {
		numSteps++
		assert.Len(t, metrics, 3)
		return nil
	})
	EveryNSteps(loop, 3, "every3", 0, func(loop *Loop, metrics []float64) error {
		numEvery++
		return nil
	})
	var endCalled bool
	loop.OnEnd("end", 0, func(loop *Loop, metrics []float64) error {
		endCalled = true
		return nil
	})

	metrics, err := loop.RunSteps(ds, 10)
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []int{0}, startSteps)
	assert.Equal(t, []int{10}, endSteps)
	assert.Equal(t, 10, numSteps)
	assert.Equal(t, 4, numEvery) // Steps 3, 6, 9 and the last one.
	assert.True(t, endCalled)
	assert.Equal(t, 10, loop.LoopStep)
	assert.Equal(t, int64(10), trainer.GlobalStep())
	assert.Len(t, loop.TrainStepDurations, 10)
	assert.Greater(t, loop.MedianTrainStepDuration(), time.Duration(0))

	// Continues from where it stopped.
	_, err = loop.RunToGlobalStep(ds, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(15), trainer.GlobalStep())
	assert.Equal(t, 15, loop.LoopStep)
	assert.Equal(t, []int{0, 10}, startSteps)
	assert.Equal(t, []int{10, 15}, endSteps)
	metrics, err = loop.RunToGlobalStep(ds, 15)
	require.NoError(t, err)
	assert.Nil(t, metrics)
}

func TestLoopRunEpochs(t *testing.T) {
	_, trainer := newLinearClassifier(t)
	loop := NewLoop(trainer)
	batch := twoClassesBatch()
	ds := &sliceDataset{batches: [][]Example{batch[:2], batch[2:], batch}}

	var endSteps []int
	loop.OnStep("endStep", 0, func(loop *Loop, _ []float64) error {
		endSteps = append(endSteps, loop.EndStep)
		return nil
	})
	_, err := loop.RunEpochs(ds, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, loop.LoopStep)
	assert.Equal(t, int64(6), trainer.GlobalStep())
	assert.Equal(t, []int{-1, -1, -1, 6, 6, 6}, endSteps)
	assert.Equal(t, 0, ds.next, "dataset is reset after each epoch")
}

func TestLoopErrors(t *testing.T) {
	_, trainer := newLinearClassifier(t)
	loop := NewLoop(trainer)
	ds := &sliceDataset{batches: [][]Example{twoClassesBatch()}}

	// Finite dataset exhausted by RunSteps.
	_, err := loop.RunSteps(ds, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Dataset end")

	// Errors in hooks interrupt the loop.
	ds.Reset()
	loop.OnStep("failing", 0, func(loop *Loop, _ []float64) error {
		return assert.AnError
	})
	_, err = loop.RunEpochs(ds, 1)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "failing")
}

func TestMedianTrainStepDuration(t *testing.T) {
	loop := &Loop{}
	assert.Equal(t, time.Millisecond, loop.MedianTrainStepDuration())
	loop.TrainStepDurations = []time.Duration{3, 1, 2}
	assert.Equal(t, time.Duration(2), loop.MedianTrainStepDuration())
	assert.Equal(t, []time.Duration{3, 1, 2}, loop.TrainStepDurations)
}
