// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializer provides variable initializers for context.Context (see Context.WithInitializer).
//
// Weights initializers take the fan-in and fan-out of the unit the weight belongs to: for a
// neuron with dimIn inputs, every weight has fanIn=dimIn and fanOut=1, and its bias is
// usually initialized to zero.
package initializer

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/pkg/errors"
)

// Initializer is the type of the variable initializers, defined in context.VariableInitializer as
//
//	func(rng *rand.Rand, fanIn, fanOut int) float64
type Initializer = context.VariableInitializer

var (
	// Zero initializes variables with zero.
	Zero Initializer = func(_ *rand.Rand, _, _ int) float64 { return 0 }

	// One initializes variables with one.
	One Initializer = func(_ *rand.Rand, _, _ int) float64 { return 1 }
)

// Constant returns an initializer that always returns value.
func Constant(value float64) Initializer {
	return func(_ *rand.Rand, _, _ int) float64 { return value }
}

// Uniform returns an initializer that generates random uniform values from [minValue, maxValue).
func Uniform(minValue, maxValue float64) Initializer {
	return func(rng *rand.Rand, _, _ int) float64 {
		return minValue + rng.Float64()*(maxValue-minValue)
	}
}

// Normal returns an initializer that generates random normal values with the given standard deviation
// and mean set to 0.
func Normal(stddev float64) Initializer {
	return func(rng *rand.Rand, _, _ int) float64 {
		return rng.NormFloat64() * stddev
	}
}

// FanMode selects which of fan-in or fan-out is used to scale He/Kaiming initializers.
type FanMode int

const (
	// FanIn preserves the magnitude of the variance of the weights in the forward pass.
	FanIn FanMode = iota

	// FanOut preserves the magnitudes in the backward pass.
	FanOut
)

func (mode FanMode) fan(fanIn, fanOut int) float64 {
	if mode == FanOut {
		return float64(max(fanOut, 1))
	}
	return float64(max(fanIn, 1))
}

// XavierUniform returns an initializer that generates random values with a uniform distribution with a range
// defined by +/- gain*sqrt(6 / (fanIn+fanOut)), also known as Glorot uniform.
func XavierUniform(gain float64) Initializer {
	return func(rng *rand.Rand, fanIn, fanOut int) float64 {
		limit := gain * math.Sqrt(6.0/max(1.0, float64(fanIn+fanOut)))
		return (2*rng.Float64() - 1) * limit
	}
}

// XavierNormal returns an initializer that generates random values with a normal distribution with mean in 0
// and stddev of gain*sqrt(2 / (fanIn+fanOut)), also known as Glorot normal.
func XavierNormal(gain float64) Initializer {
	return func(rng *rand.Rand, fanIn, fanOut int) float64 {
		stddev := gain * math.Sqrt(2.0/max(1.0, float64(fanIn+fanOut)))
		return rng.NormFloat64() * stddev
	}
}

// KaimingUniform returns the initializer that tries to preserve the variance of 1, for an activation with
// the given gain (see Gain), also known as He uniform. The values are sampled from
// [-bound, bound], where bound = gain*sqrt(3/fan), and fan is selected by mode.
//
// With the relu gain (sqrt(2)) and FanIn, the bound is sqrt(6/fanIn).
func KaimingUniform(gain float64, mode FanMode) Initializer {
	return func(rng *rand.Rand, fanIn, fanOut int) float64 {
		bound := gain * math.Sqrt(3.0/mode.fan(fanIn, fanOut))
		return (2*rng.Float64() - 1) * bound
	}
}

// KaimingNormal returns the normal distribution version of KaimingUniform, with stddev = gain/sqrt(fan).
func KaimingNormal(gain float64, mode FanMode) Initializer {
	return func(rng *rand.Rand, fanIn, fanOut int) float64 {
		stddev := gain / math.Sqrt(mode.fan(fanIn, fanOut))
		return rng.NormFloat64() * stddev
	}
}

// Gain returns the recommended gain value for the given nonlinearity, to be used with the Kaiming and Xavier
// initializers. For "leaky_relu", param is the slope of the negative side.
//
// Supported: "linear", "identity", "none", "sigmoid", "tanh", "relu" and "leaky_relu".
func Gain(nonlinearity string, param float64) (float64, error) {
	switch strings.ToLower(nonlinearity) {
	case "linear", "identity", "none", "", "sigmoid":
		return 1, nil
	case "tanh":
		return 5.0 / 3.0, nil
	case "relu":
		return math.Sqrt2, nil
	case "leaky_relu":
		return math.Sqrt(2.0 / (1 + param*param)), nil
	default:
		return 0, errors.Errorf("unsupported nonlinearity %q for initializer.Gain", nonlinearity)
	}
}

const (
	// ParamInitializer is the context hyperparameter that selects the initializer used by FromContext.
	// Valid values are "kaiming_uniform" (the default), "kaiming_normal", "xavier_uniform",
	// "xavier_normal", "zero" and "default" (context.DefaultInitializer).
	ParamInitializer = "initializer"

	// ParamInitializerNonlinearity is the context hyperparameter with the nonlinearity used to compute the
	// gain of the Kaiming and Xavier initializers, see Gain. The default is "relu".
	ParamInitializerNonlinearity = "initializer_nonlinearity"

	// ParamInitializerFanOut is the context hyperparameter that, if true, makes the Kaiming initializers
	// use FanOut instead of FanIn. Default is false.
	ParamInitializerFanOut = "initializer_fan_out"
)

// FromContext returns the initializer configured by the hyperparameters ParamInitializer,
// ParamInitializerNonlinearity and ParamInitializerFanOut in ctx.
func FromContext(ctx *context.Context) (Initializer, error) {
	name := context.GetParamOr(ctx, ParamInitializer, "kaiming_uniform")
	nonlinearity := context.GetParamOr(ctx, ParamInitializerNonlinearity, "relu")
	gain, err := Gain(nonlinearity, 0.01)
	if err != nil {
		return nil, err
	}
	mode := FanIn
	if context.GetParamOr(ctx, ParamInitializerFanOut, false) {
		mode = FanOut
	}
	switch name {
	case "kaiming_uniform", "he_uniform":
		return KaimingUniform(gain, mode), nil
	case "kaiming_normal", "he_normal":
		return KaimingNormal(gain, mode), nil
	case "xavier_uniform", "glorot_uniform":
		return XavierUniform(gain), nil
	case "xavier_normal", "glorot_normal":
		return XavierNormal(gain), nil
	case "zero":
		return Zero, nil
	case "default":
		return context.DefaultInitializer, nil
	default:
		return nil, errors.Errorf("unknown initializer %q set in hyperparameter %q", name, ParamInitializer)
	}
}
