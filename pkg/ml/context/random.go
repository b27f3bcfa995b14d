// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package context

import (
	"math"
	"math/rand/v2"
	"time"

	"k8s.io/klog/v2"
)

var (
	// ParamInitialSeed is the key for the hyperparameter to use for initial seed (int64). The default is 0,
	// which makes it non-deterministic. Set it to a value different from 0 for a deterministic (as long
	// as the model doesn't change) initialization.
	ParamInitialSeed = "initializers_seed"
)

// VariableInitializer returns the initial value of a new variable that is the weight connecting fanIn
// inputs to fanOut outputs, drawing from rng.
type VariableInitializer func(rng *rand.Rand, fanIn, fanOut int) float64

// DefaultInitializer samples uniformly from [-sqrt(6/fanIn), sqrt(6/fanIn)] (Kaiming uniform for a linear
// or relu unit). If fanIn <= 0 it returns 0.
func DefaultInitializer(rng *rand.Rand, fanIn, _ int) float64 {
	if fanIn <= 0 {
		return 0
	}
	bound := math.Sqrt(6.0 / float64(fanIn))
	return (2*rng.Float64() - 1) * bound
}

// RandomSource returns the random number generator used by the Context, e.g. to initialize variables or
// shuffle datasets. It is created on first use with the seed given by the ParamInitialSeed hyperparameter
// (see RngStateReset).
func (ctx *Context) RandomSource() *rand.Rand {
	if ctx.data.rng == nil {
		ctx.RngStateReset()
	}
	return ctx.data.rng
}

// RngStateReset resets the context random number generator: from the ParamInitialSeed hyperparameter,
// if it is set to something other than 0, or from the clock otherwise.
func (ctx *Context) RngStateReset() {
	seed := GetParamOr[int64](ctx, ParamInitialSeed, 0)
	if seed == 0 {
		seed = time.Now().UnixNano()
		klog.V(1).Infof("context random number generator seeded from clock with %d", seed)
	}
	ctx.RngStateFromSeed(seed)
}

// RngStateFromSeed resets the context random number generator with a static seed.
func (ctx *Context) RngStateFromSeed(seed int64) {
	ctx.data.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}
