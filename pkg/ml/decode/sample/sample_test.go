// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sample

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 42))
}

// TestGreedy groups greedy sampling tests.
func TestGreedy(t *testing.T) {
	assert.Equal(t, 5, Greedy([]float64{0, 0, 0, 0, 0, 10, 0, 0, 0, 0}))
	assert.Equal(t, 3, Greedy([]float64{0, 0, 0, 10, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, 0, Greedy([]float64{1, 1}), "first index on ties")
}

// TestTemperature groups temperature sampling tests.
func TestTemperature(t *testing.T) {
	rng := newRand()
	t.Run("Range", func(t *testing.T) {
		logits := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		for range 100 {
			token := Temperature(rng, logits, 1.0)
			assert.GreaterOrEqual(t, token, 0)
			assert.Less(t, token, 10)
		}
	})

	t.Run("Distribution", func(t *testing.T) {
		// Probabilities of softmax([0, log(3)]) are 1/4 and 3/4.
		logits := []float64{0, math.Log(3)}
		const numSamples = 20_000
		var count1 int
		for range numSamples {
			count1 += Temperature(rng, logits, 1.0)
		}
		assert.InDelta(t, 0.75, float64(count1)/numSamples, 0.02)
	})

	t.Run("LowTemperature", func(t *testing.T) {
		logits := []float64{1, 2, 3}
		for range 100 {
			assert.Equal(t, 2, Temperature(rng, logits, 1e-3))
		}
		assert.Equal(t, 2, Temperature(rng, logits, 0))
	})

	t.Run("MaskedLogits", func(t *testing.T) {
		logits := []float64{math.Inf(-1), 0, math.Inf(-1)}
		for range 100 {
			assert.Equal(t, 1, Temperature(rng, logits, 10))
		}
	})
}

func TestMasks(t *testing.T) {
	logits := []float64{1, 4, 2, 3}
	assert.Equal(t, []bool{false, true, false, true}, TopKMask(logits, 2))
	assert.Equal(t, []bool{true, true, true, true}, TopKMask(logits, 10))

	probs := Softmax([]float64{0, math.Log(3)})
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, probs, 1e-9)
	assert.Equal(t, []bool{false, true}, TopPMask([]float64{0, math.Log(3)}, 0.7))
	assert.Equal(t, []bool{true, true}, TopPMask([]float64{0, math.Log(3)}, 0.8))
	// At least one token is kept.
	assert.Equal(t, []bool{false, true}, TopPMask([]float64{0, math.Log(3)}, 1e-6))
}

// TestTopKAndTopP checks that only tokens in the top-k or nucleus are sampled.
func TestTopKAndTopP(t *testing.T) {
	rng := newRand()
	logits := []float64{5, 1, 4, 0, 3}
	for range 200 {
		token := TopKWithTemperature(rng, logits, 2, 1.0)
		assert.Contains(t, []int{0, 2}, token)
		token = TopP(rng, []float64{10, 0, 9.5, -5}, 0.9, 1.0)
		assert.Contains(t, []int{0, 2}, token)
	}
}

func TestSampleWithStrategy(t *testing.T) {
	rng := newRand()
	logits := []float64{0, 0, 10}
	for _, strategy := range StrategyValues() {
		token, err := SampleWithStrategy(rng, logits, strategy, 0.5, 1, 0.9)
		require.NoError(t, err)
		assert.Equal(t, 2, token, "strategy %s", strategy)
	}
	_, err := SampleWithStrategy(rng, nil, StrategyGreedy, 1, 1, 1)
	require.Error(t, err)
	_, err = SampleWithStrategy(rng, logits, StrategyTopK, 1, 0, 1)
	require.Error(t, err)
	_, err = SampleWithStrategy(rng, logits, StrategyTopP, 1, 1, 1.5)
	require.Error(t, err)
	_, err = SampleWithStrategy(rng, logits, Strategy(17), 1, 1, 1)
	require.Error(t, err)

	strategy, err := StrategyString("top_p")
	require.NoError(t, err)
	assert.Equal(t, StrategyTopP, strategy)
}
