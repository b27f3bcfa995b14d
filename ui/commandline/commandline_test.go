// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"io"
	"os"
	"path"
	"testing"
	"time"

	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/ml/train/losses"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestContext() *context.Context {
	ctx := context.New()
	ctx.SetParam("x", 11.0)
	ctx.SetParam("y", 7)
	ctx.SetParam("z", false)
	ctx.SetParam("s", "foo")
	ctx.SetParam("seed", int64(0))
	ctx.SetParam("list_int", []int{})
	ctx.SetParam("list_float", []float64{})
	ctx.SetParam("list_str", []string{})
	return ctx
}

func TestParseContextSettings(t *testing.T) {
	ctx := createTestContext()

	paramsSet, err := ParseContextSettings(ctx,
		"x=13;/a/z=true;/a/b/y=3;s=bar;seed=1_000;list_int=1,3,7;list_float=0.1,1.2,3e3;list_str=a,b;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "/a/z", "/a/b/y", "s", "seed", "list_int", "list_float", "list_str"}, paramsSet)
	assert.Equal(t, 13.0, context.MustGetParam[float64](ctx, "x"))

	y, found := ctx.GetParam("y")
	assert.True(t, found)
	assert.Equal(t, 7, y)
	y, _ = ctx.In("a").GetParam("y")
	assert.Equal(t, 7, y)
	y, _ = ctx.In("a").In("b").GetParam("y")
	assert.Equal(t, 3, y)

	assert.False(t, context.MustGetParam[bool](ctx, "z"))
	assert.True(t, context.MustGetParam[bool](ctx.In("a"), "z"))
	assert.Equal(t, "bar", context.MustGetParam[string](ctx, "s"))
	seed, _ := ctx.GetParam("seed")
	assert.Equal(t, int64(1000), seed)

	assert.Equal(t, []int{1, 3, 7}, context.GetParamOr(ctx, "list_int", []int{}))
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, context.GetParamOr(ctx, "list_float", []float64{}))
	assert.Equal(t, []string{"a", "b"}, context.GetParamOr(ctx, "list_str", []string{}))
	_, err = ParseContextSettings(ctx, "list_int=")
	require.NoError(t, err)
	assert.Equal(t, []int{}, context.GetParamOr(ctx, "list_int", []int{1}))

	// Parameter "q" is unknown.
	_, err = ParseContextSettings(ctx, "q=3")
	require.Error(t, err)

	// Parameter "q" is still unknown in root.
	ctx.In("c").SetParam("q", 13)
	_, err = ParseContextSettings(ctx, "q=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseContextSettings(ctx, "y=3.14")
	require.Error(t, err)
	_, err = ParseContextSettings(ctx, "list_int=1,x")
	require.Error(t, err)

	// Cannot parse setting with scope not absolute.
	_, err = ParseContextSettings(ctx, "a/abc=3.14")
	require.Error(t, err)

	// Missing "=".
	_, err = ParseContextSettings(ctx, "x")
	require.Error(t, err)

	modified := SprintModifiedContextSettings(ctx, []string{"x", "/a/b/y", "x"})
	assert.Equal(t, "\t\"/a/b/y\": (int) 3\n\t\"x\": (float64) 13", modified)
	assert.Contains(t, SprintContextSettings(ctx), "\"/a/z\": (bool) true")
}

func TestParseContextSettingsFile(t *testing.T) {
	ctx := createTestContext()
	filePath := path.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("# Comment\nx=1.5;y=2\n\ns=from_file\n"), 0644))
	paramsSet, err := ParseContextSettings(ctx, "file:"+filePath+";z=true")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "s", "z"}, paramsSet)
	assert.Equal(t, 1.5, context.MustGetParam[float64](ctx, "x"))
	assert.Equal(t, 2, context.MustGetParam[int](ctx, "y"))
	assert.Equal(t, "from_file", context.MustGetParam[string](ctx, "s"))

	_, err = ParseContextSettings(ctx, "file:"+path.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500ns", FormatDuration(500*time.Nanosecond))
	assert.Equal(t, "1.50µs", FormatDuration(1500*time.Nanosecond))
	assert.Equal(t, "2.25ms", FormatDuration(2250*time.Microsecond))
	assert.Equal(t, "3.10s", FormatDuration(3100*time.Millisecond))
	assert.Equal(t, "2m3s", FormatDuration(2*time.Minute+3*time.Second+100*time.Millisecond))
}

// constantDataset yields always the same batch. If numBatches > 0, it ends after numBatches batches.
type constantDataset struct {
	numBatches, count int
}

func (ds *constantDataset) Name() string { return "constant" }
func (ds *constantDataset) Reset()       { ds.count = 0 }
func (ds *constantDataset) Yield() ([]train.Example, error) {
	if ds.numBatches > 0 && ds.count >= ds.numBatches {
		return nil, io.EOF
	}
	ds.count++
	return []train.Example{{Inputs: []float64{1}, Labels: []float64{2}}}, nil
}

func TestProgressBar(t *testing.T) {
	ctx := context.New()
	w := ctx.VariableWithValue("w", 0)
	modelFn := func(_ *context.Context, inputs []*Node) []*Node { return []*Node{Mul(w.Node(), inputs[0])} }
	trainer := train.NewTrainer(ctx, modelFn, losses.MeanSquaredError,
		optimizers.StochasticGradientDescent().LearningRate(0.1).Done(), nil, nil)
	loop := train.NewLoop(trainer)
	buf := &bytes.Buffer{}
	var numExtraCalls int
	attachProgressBarTo(loop, buf, func() (name, value string) {
		numExtraCalls++
		return "Extra", "value"
	})
	_, err := loop.RunSteps(&constantDataset{}, 20)
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Global Step")
	assert.Contains(t, output, "20 of 20")
	assert.Contains(t, output, "Batch Loss")
	assert.Contains(t, output, "Extra")
	assert.GreaterOrEqual(t, numExtraCalls, 1)

	require.NoError(t, ReportEval(trainer, &constantDataset{numBatches: 2}))
}
