// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sample provides various sampling strategies for autoregressive generation: each one picks the
// index of the next token given the logits the model produced for it.
package sample

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Strategy represents the different types of sampling available.
//
//go:generate go tool enumer -type=Strategy -trimprefix=Strategy -transform=snake -text -output=gen_strategy_enumer.go sample.go
type Strategy int

const (
	StrategyGreedy Strategy = iota
	StrategyTemperature
	StrategyTopK
	StrategyTopP
)

// gumbelEpsilon bounds the uniform samples away from 0, where the Gumbel noise is infinite.
const gumbelEpsilon = 1e-10

// Greedy selects the index of the max logit.
func Greedy(logits []float64) int {
	return xslices.ArgMax(logits)
}

// Temperature scales the logits by 1/temperature and samples via Gumbel-ArgMax, which is equivalent to
// sampling from the softmax of the scaled logits. Logits set to -Inf are never selected.
//
// A temperature <= 0 is the same as Greedy.
func Temperature(rng *rand.Rand, logits []float64, temperature float64) int {
	if temperature <= 0 {
		return Greedy(logits)
	}
	best, bestValue := -1, math.Inf(-1)
	for ii, logit := range logits {
		if math.IsInf(logit, -1) || math.IsNaN(logit) {
			continue
		}
		uniform := max(rng.Float64(), gumbelEpsilon)
		noisy := logit/temperature - math.Log(-math.Log(uniform))
		if best == -1 || noisy > bestValue {
			best, bestValue = ii, noisy
		}
	}
	if best == -1 {
		return Greedy(logits)
	}
	return best
}

// Softmax returns the probabilities of the logits. It subtracts the max logit for numeric stability.
func Softmax(logits []float64) []float64 {
	maxLogit := slices.Max(logits)
	probs := make([]float64, len(logits))
	var sum float64
	for ii, logit := range logits {
		probs[ii] = math.Exp(logit - maxLogit)
		sum += probs[ii]
	}
	for ii := range probs {
		probs[ii] /= sum
	}
	return probs
}

// sortedIndices returns the indices of values sorted by decreasing value, ties broken by index.
func sortedIndices(values []float64) []int {
	indices := xslices.Iota(0, len(values))
	slices.SortStableFunc(indices, func(a, b int) int {
		return cmp.Compare(values[b], values[a])
	})
	return indices
}

// TopKMask returns a mask with the k largest logits set to true.
func TopKMask(logits []float64, k int) []bool {
	mask := make([]bool, len(logits))
	for _, idx := range sortedIndices(logits)[:min(k, len(logits))] {
		mask[idx] = true
	}
	return mask
}

// TopPMask returns a mask with the smallest set of most probable tokens whose probabilities sum to at
// least p (the "nucleus"). At least one token is always selected.
func TopPMask(logits []float64, p float64) []bool {
	probs := Softmax(logits)
	mask := make([]bool, len(logits))
	var cumulative float64
	for _, idx := range sortedIndices(probs) {
		mask[idx] = true
		cumulative += probs[idx]
		if cumulative >= p {
			break
		}
	}
	return mask
}

// applyMask returns a copy of logits with the masked out positions set to -Inf.
func applyMask(logits []float64, mask []bool) []float64 {
	masked := slices.Clone(logits)
	for ii, keep := range mask {
		if !keep {
			masked[ii] = math.Inf(-1)
		}
	}
	return masked
}

// TopKWithTemperature masks all but the top-k logits, and then samples with temperature.
func TopKWithTemperature(rng *rand.Rand, logits []float64, k int, temperature float64) int {
	return Temperature(rng, applyMask(logits, TopKMask(logits, k)), temperature)
}

// TopP does nucleus sampling: it masks the tokens out of the top-p probability mass, and then samples
// with temperature.
func TopP(rng *rand.Rand, logits []float64, p float64, temperature float64) int {
	return Temperature(rng, applyMask(logits, TopPMask(logits, p)), temperature)
}

// SampleWithStrategy dispatches to greedy|temperature|top_k|top_p.
func SampleWithStrategy(rng *rand.Rand, logits []float64, strategy Strategy, temperature float64, topK int, topP float64) (int, error) {
	if len(logits) == 0 {
		return 0, errors.New("cannot sample from empty logits")
	}
	switch strategy {
	case StrategyGreedy:
		return Greedy(logits), nil
	case StrategyTemperature:
		return Temperature(rng, logits, temperature), nil
	case StrategyTopK:
		if topK <= 0 {
			return 0, errors.Errorf("top_k sampling requires k > 0, got %d", topK)
		}
		return TopKWithTemperature(rng, logits, topK, temperature), nil
	case StrategyTopP:
		if topP <= 0 || topP > 1 {
			return 0, errors.Errorf("top_p sampling requires 0 < p <= 1, got %g", topP)
		}
		return TopP(rng, logits, topP, temperature), nil
	default:
		return 0, errors.Errorf("unknown sampling strategy %s", strategy)
	}
}
