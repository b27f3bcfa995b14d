// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cosineschedule_test

import (
	"math"
	"testing"

	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/ml/train/losses"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers/cosineschedule"
	"github.com/stretchr/testify/require"
)

func TestCosineAnnealingSchedule(t *testing.T) {
	const periodInSteps = 100
	const minLearningRate = 0.001
	const baseLearningRate = 1.0

	t.Run("periodSteps", func(t *testing.T) {
		ctx := context.New()
		for ii := range 2 * periodInSteps {
			cosineschedule.New(ctx).
				PeriodInSteps(periodInSteps).
				LearningRate(baseLearningRate).
				MinLearningRate(minLearningRate).
				Done()
			lr := optimizers.LearningRateVar(ctx, 1e3).Value()

			// Check learning rate is following cosine formulation.
			cycle := float64(ii) / float64(periodInSteps)
			wantLR := (math.Cos((cycle-math.Floor(cycle))*math.Pi) + 1.0) / 2.0
			wantLR = wantLR*(baseLearningRate-minLearningRate) + minLearningRate
			require.InDeltaf(t, wantLR, lr, 1e-9, "step=%d", ii)
			require.Equal(t, int64(ii+1), optimizers.IncrementGlobalStep(ctx))
		}
	})

	t.Run("periodSteps with warmUp+context configuration", func(t *testing.T) {
		ctx := context.New()
		const warmUpSteps = 10
		ctx.SetParams(map[string]any{
			optimizers.ParamLearningRate:        baseLearningRate,
			cosineschedule.ParamPeriodSteps:     periodInSteps,
			cosineschedule.ParamWarmUpSteps:     warmUpSteps,
			cosineschedule.ParamMinLearningRate: minLearningRate,
		})
		for ii := range 2*periodInSteps + warmUpSteps {
			cosineschedule.New(ctx).FromContext().Done()
			lr := optimizers.LearningRateVar(ctx, 1e3).Value()
			var ratio float64
			if ii < warmUpSteps {
				ratio = float64(ii) / float64(warmUpSteps)
			} else {
				cycle := float64(ii-warmUpSteps) / float64(periodInSteps)
				ratio = (math.Cos((cycle-math.Floor(cycle))*math.Pi) + 1.0) / 2.0
			}
			wantLR := ratio*(baseLearningRate-minLearningRate) + minLearningRate
			require.InDeltaf(t, wantLR, lr, 1e-9, "wantLR=%g, lr=%g, step=%d", wantLR, lr, ii)
			optimizers.IncrementGlobalStep(ctx)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		ctx := context.New()
		cosineschedule.New(ctx).LearningRate(baseLearningRate).Done()
		require.Nil(t, ctx.GetVariableByScopeAndName("/"+optimizers.Scope, optimizers.ParamLearningRate))
		require.Panics(t, func() { cosineschedule.New(ctx).PeriodInSteps(10).Done() }, "no learning rate configured")
	})
}

// pointsDataset loops over a single batch of points on the line y=2x.
type pointsDataset struct{}

func (pointsDataset) Name() string { return "points" }
func (pointsDataset) Reset()       {}
func (pointsDataset) Yield() ([]train.Example, error) {
	return []train.Example{
		{Inputs: []float64{1}, Labels: []float64{2}},
		{Inputs: []float64{-1}, Labels: []float64{-2}},
		{Inputs: []float64{0.5}, Labels: []float64{1}},
	}, nil
}

func TestAttachToLoop(t *testing.T) {
	const periodInSteps = 10
	ctx := context.New()
	ctx.SetParams(map[string]any{
		optimizers.ParamLearningRate:    0.1,
		cosineschedule.ParamPeriodSteps: periodInSteps,
	})
	var w *context.Variable
	var numModelCalls int
	modelFn := func(ctx *context.Context, inputs []*Node) []*Node {
		numModelCalls++
		w = ctx.Checked(false).VariableWithValue("w", 0)
		return []*Node{Mul(w.Node(), inputs[0])}
	}
	trainer := train.NewTrainer(ctx, modelFn, losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().Done(), nil, nil)
	loop := train.NewLoop(trainer)
	schedule := cosineschedule.New(ctx).FromContext()
	schedule.AttachToLoop(loop)
	_, err := loop.RunSteps(pointsDataset{}, 4)
	require.NoError(t, err)
	require.Equal(t, 4*3, numModelCalls)

	// The learning rate is updated once per step, for the next step.
	require.Equal(t, int64(4), optimizers.GetGlobalStep(ctx))
	lrVar := optimizers.LearningRateVar(ctx, 1e3)
	require.InDelta(t, schedule.LearningRateAt(4), lrVar.Value(), 1e-9)
	require.Less(t, lrVar.Value(), 0.1)

	// The learning rate variable is created before the nodes of the first step.
	require.Less(t, lrVar.Node().Id(), w.Node().Id())
	require.Less(t, optimizers.GetGlobalStepVar(ctx).Node().Id(), w.Node().Id())
}

func TestAttachToLoopInvalid(t *testing.T) {
	ctx := context.New()
	ctx.SetParam(cosineschedule.ParamPeriodSteps, 10)
	modelFn := func(ctx *context.Context, inputs []*Node) []*Node {
		w := ctx.Checked(false).VariableWithValue("w", 0)
		return []*Node{Mul(w.Node(), inputs[0])}
	}
	trainer := train.NewTrainer(ctx, modelFn, losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().LearningRate(0.1).Done(), nil, nil)
	loop := train.NewLoop(trainer)
	cosineschedule.New(ctx).FromContext().AttachToLoop(loop)

	// No learning rate configured in the context.
	_, err := loop.RunSteps(pointsDataset{}, 1)
	require.Error(t, err)
}
