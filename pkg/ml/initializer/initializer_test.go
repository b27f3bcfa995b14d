// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package initializer

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(initFn Initializer, n, fanIn, fanOut int) (values []float64, mean, stddev float64) {
	rng := rand.New(rand.NewPCG(42, 42))
	values = make([]float64, n)
	for ii := range values {
		values[ii] = initFn(rng, fanIn, fanOut)
		mean += values[ii]
	}
	mean /= float64(n)
	for _, v := range values {
		stddev += (v - mean) * (v - mean)
	}
	stddev = math.Sqrt(stddev / float64(n))
	return
}

func TestUniformInitializers(t *testing.T) {
	const n = 10_000
	values, mean, _ := sample(KaimingUniform(math.Sqrt2, FanIn), n, 6, 1)
	for _, v := range values {
		require.LessOrEqual(t, math.Abs(v), 1.0)
	}
	assert.InDelta(t, 0.0, mean, 0.05)

	values, _, _ = sample(KaimingUniform(1, FanOut), n, 6, 3)
	for _, v := range values {
		require.LessOrEqual(t, math.Abs(v), 1.0)
	}

	values, _, _ = sample(XavierUniform(1), n, 4, 2)
	for _, v := range values {
		require.LessOrEqual(t, math.Abs(v), 1.0)
	}

	values, _, _ = sample(Uniform(2, 3), n, 1, 1)
	for _, v := range values {
		require.GreaterOrEqual(t, v, 2.0)
		require.Less(t, v, 3.0)
	}
}

func TestNormalInitializers(t *testing.T) {
	const n = 20_000
	_, mean, stddev := sample(KaimingNormal(math.Sqrt2, FanIn), n, 8, 1)
	assert.InDelta(t, 0.0, mean, 0.02)
	assert.InDelta(t, 0.5, stddev, 0.02)

	_, mean, stddev = sample(XavierNormal(1), n, 1, 1)
	assert.InDelta(t, 0.0, mean, 0.02)
	assert.InDelta(t, 1.0, stddev, 0.03)

	_, _, stddev = sample(Normal(3), n, 1, 1)
	assert.InDelta(t, 3.0, stddev, 0.1)
}

func TestConstants(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	assert.Equal(t, 0.0, Zero(rng, 3, 1))
	assert.Equal(t, 1.0, One(rng, 3, 1))
	assert.Equal(t, 7.0, Constant(7)(rng, 3, 1))
}

func TestGain(t *testing.T) {
	for name, want := range map[string]float64{
		"none":    1,
		"sigmoid": 1,
		"tanh":    5.0 / 3.0,
		"relu":    math.Sqrt2,
	} {
		got, err := Gain(name, 0)
		require.NoError(t, err)
		assert.InDeltaf(t, want, got, 1e-12, "Gain(%q)", name)
	}
	got, err := Gain("leaky_relu", 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)
	_, err = Gain("softmax", 0)
	require.Error(t, err)
}

func TestFromContext(t *testing.T) {
	ctx := context.New()
	ctx.SetParam(context.ParamInitialSeed, int64(7))
	initFn, err := FromContext(ctx)
	require.NoError(t, err)
	v := ctx.WithInitializer(initFn).VariableWithFan("w", 6, 1).Value()
	assert.LessOrEqual(t, math.Abs(v), 1.0)

	ctx.SetParam(ParamInitializer, "zero")
	initFn, err = FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ctx.WithInitializer(initFn).VariableWithFan("w2", 6, 1).Value())

	ctx.SetParam(ParamInitializer, "orthogonal")
	_, err = FromContext(ctx)
	require.Error(t, err)

	ctx.SetParam(ParamInitializer, "xavier_uniform")
	ctx.SetParam(ParamInitializerNonlinearity, "gelu")
	_, err = FromContext(ctx)
	require.Error(t, err)
}
