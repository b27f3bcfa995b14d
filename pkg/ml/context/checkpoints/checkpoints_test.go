// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package checkpoints

import (
	"math"
	"os"
	"path"
	"testing"

	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoints(t *testing.T) {
	var dir, runId string
	{
		// Build model, checkpoint a few times.
		ctx := context.New()
		ctx.SetParam(optimizers.ParamLearningRate, 0.01)
		ctx.SetParam(optimizers.ParamWeightDecay, 0.001)
		ctx.SetParam("hidden_layers", []int{8, 4})
		ctx.SetParam(context.ParamInitialSeed, int64(42))
		ctx.In("layer_1").SetParam(optimizers.ParamWeightDecay, 0.004)
		w := ctx.In("layer_1").VariableWithValue("w", 1.0)
		checkpoint := Build(ctx).TempDir("", "test_checkpoints_").Keep(3).MustDone()
		assert.Equal(t, 0, checkpoint.checkpointsCount)
		runId = checkpoint.RunId()
		require.NotEmpty(t, runId)
		dir = checkpoint.Dir()
		for ii := range 10 {
			assert.Equal(t, int64(ii+1), optimizers.IncrementGlobalStep(ctx))
			w.SetValue(float64(ii + 1))
			require.NoError(t, checkpoint.Save(), "Saving checkpoint")
		}

		// Check the correct number of checkpoints (3) remain.
		list, err := checkpoint.ListCheckpoints()
		require.NoError(t, err)
		assert.Len(t, list, 3, "Number of remaining checkpoints")
		assert.Equal(t, 10, checkpoint.checkpointsCount)
		assert.Equal(t, 9, maxCheckPointCountFromCheckpoints(list))
		assert.Contains(t, list[2], "-step-00000010.json")
	}

	// Test loading of variables and parameters.
	{
		ctx := context.New()
		ctx.SetParam(optimizers.ParamLearningRate, 5.0)   // Value should be overwritten when loading.
		ctx.SetParam(optimizers.ParamWeightDecay, 17.0)   // Value should NOT be overwritten when loading.
		globalStepVar := optimizers.GetGlobalStepVar(ctx) // Existing variables are overwritten.
		checkpoint := Build(ctx).Dir(dir).Keep(3).ExcludeParams(optimizers.ParamWeightDecay).MustDone()
		assert.Equal(t, runId, checkpoint.RunId())
		assert.Equal(t, 10.0, globalStepVar.Value())

		assert.Equal(t, 0.01, context.GetParamOr(ctx, optimizers.ParamLearningRate, 0.0))
		assert.Equal(t, 17.0, context.GetParamOr(ctx, optimizers.ParamWeightDecay, 0.0))
		assert.Equal(t, 17.0, context.GetParamOr(ctx.In("layer_1"), optimizers.ParamWeightDecay, 0.0),
			"un-scoped exclusion applies to all scopes")
		assert.Equal(t, []int{8, 4}, context.MustGetParam[[]int](ctx, "hidden_layers"))
		assert.Equal(t, int64(42), context.MustGetParam[int64](ctx, context.ParamInitialSeed))

		// Lazy loading: the variable is not created until the model creates it.
		assert.Equal(t, 1, ctx.NumVariables())
		assert.Equal(t, map[string]float64{"/layer_1/w": 10}, checkpoint.LoadedVariables())
		w := ctx.In("layer_1").VariableWithValue("w", 0.0)
		assert.Equal(t, 10.0, w.Value())
		assert.Empty(t, checkpoint.LoadedVariables())

		// Saving continues the numbering, and removes old checkpoints.
		optimizers.IncrementGlobalStep(ctx)
		require.NoError(t, checkpoint.Save())
		list, err := checkpoint.ListCheckpoints()
		require.NoError(t, err)
		assert.Len(t, list, 3)
		assert.Equal(t, 10, maxCheckPointCountFromCheckpoints(list))
		require.NoError(t, checkpoint.Backup())
		_, err = os.Stat(path.Join(dir, BackupDir, list[2]))
		require.NoError(t, err)
	}

	// Take the mean of the last 3 checkpoints: w=9, 10, 10 (w was not changed after the last load).
	{
		ctx := context.New()
		// The global step is not trainable, it comes from the last checkpoint.
		checkpoint := Load(ctx).Dir(dir).TakeMean(3).Immediate().MustDone()
		w := ctx.GetVariableByScopeAndName("/layer_1", "w")
		require.NotNil(t, w)
		assert.InDelta(t, (9.0+10.0+10.0)/3, w.Value(), 1e-9)
		assert.True(t, w.Trainable)
		assert.Equal(t, int64(11), optimizers.GetGlobalStep(ctx))
		assert.False(t, optimizers.GetGlobalStepVar(ctx).Trainable)
		assert.Empty(t, checkpoint.LoadedVariables())
	}
}

func TestCheckpointsNonFiniteAndCompressed(t *testing.T) {
	ctx := context.New()
	ctx.VariableWithValue("nan", math.NaN())
	ctx.VariableWithValue("inf", math.Inf(-1))
	ctx.VariableWithValue("x", 0.1)
	checkpoint := Build(ctx).TempDir("", "test_checkpoints_").Compress(true).MustDone()
	require.NoError(t, checkpoint.Save())
	list, err := checkpoint.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Contains(t, list[0], "-initial.json.gz")

	ctx2 := context.New()
	_ = Load(ctx2).Dir(checkpoint.Dir()).Immediate().MustDone()
	assert.True(t, math.IsNaN(ctx2.GetVariableByScopeAndName("/", "nan").Value()))
	assert.True(t, math.IsInf(ctx2.GetVariableByScopeAndName("/", "inf").Value(), -1))
	assert.Equal(t, 0.1, ctx2.GetVariableByScopeAndName("/", "x").Value())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(context.New()).Dir(path.Join(t.TempDir(), "missing")).Done()
	require.Error(t, err)
	_, err = Load(context.New()).Dir(t.TempDir()).Done()
	require.Error(t, err)
	_, err = Build(context.New()).Done()
	require.Error(t, err)

	filePath := path.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0644))
	_, err = Build(context.New()).Dir(filePath).Done()
	require.Error(t, err)

	var h *Handler
	require.NoError(t, h.Save())
	assert.Equal(t, "", h.Dir())
}
