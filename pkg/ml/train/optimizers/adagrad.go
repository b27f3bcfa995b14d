// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/pkg/ml/context"
)

const (
	// ParamAdaGradEpsilon is the context parameter with the epsilon used by AdaGrad and RMSProp to avoid
	// division by zero. Default is 1e-7.
	ParamAdaGradEpsilon = "adagrad_epsilon"

	// ParamRMSPropDecay is the context parameter with the decay rate of the moving average of the squared
	// gradients used by RMSProp. Default is 0.99.
	ParamRMSPropDecay = "rmsprop_decay"
)

// AdaGradConfig holds the configuration of AdaGrad and RMSProp optimizers, which scale the gradient of each
// variable by the inverse of the root of its accumulated squared gradients.
//
// It's created with AdaGrad or RMSProp, configured with its methods, and Done returns the optimizer.
type AdaGradConfig struct {
	learningRate, weightDecay, epsilon, decay float64
	rmsProp                                   bool
}

// AdaGrad creates a configuration for an optimizer that for each variable `p` and gradient `g` does:
//
//	s += g²
//	p -= learningRate * (g / (sqrt(s) + epsilon) + weightDecay * p)
func AdaGrad() *AdaGradConfig {
	return &AdaGradConfig{epsilon: 1e-7}
}

// RMSProp creates a configuration for an optimizer that for each variable `p` and gradient `g` does:
//
//	s = decay * s + (1 - decay) * g²
//	p -= learningRate * (g / (sqrt(s) + epsilon) + weightDecay * p)
func RMSProp() *AdaGradConfig {
	return &AdaGradConfig{epsilon: 1e-7, decay: 0.99, rmsProp: true}
}

// FromContext reads the configuration from the context hyperparameters: ParamLearningRate, ParamWeightDecay,
// ParamAdaGradEpsilon and ParamRMSPropDecay (only used by RMSProp).
func (c *AdaGradConfig) FromContext(ctx *context.Context) *AdaGradConfig {
	c.learningRate = context.GetParamOr(ctx, ParamLearningRate, c.learningRate)
	c.weightDecay = context.GetParamOr(ctx, ParamWeightDecay, c.weightDecay)
	c.epsilon = context.GetParamOr(ctx, ParamAdaGradEpsilon, c.epsilon)
	if c.rmsProp {
		c.decay = context.GetParamOr(ctx, ParamRMSPropDecay, c.decay)
	}
	return c
}

// LearningRate sets the initial learning rate. If not set (or set to 0), the value of ParamLearningRate is used,
// or DefaultLearningRate.
func (c *AdaGradConfig) LearningRate(value float64) *AdaGradConfig {
	c.learningRate = value
	return c
}

// WeightDecay sets the weight decay. Default is 0.
func (c *AdaGradConfig) WeightDecay(weightDecay float64) *AdaGradConfig {
	c.weightDecay = weightDecay
	return c
}

// Epsilon sets the value added to the denominator. Default is 1e-7.
func (c *AdaGradConfig) Epsilon(epsilon float64) *AdaGradConfig {
	c.epsilon = epsilon
	return c
}

// Decay sets the decay of the moving average of squared gradients: it is only used by RMSProp.
func (c *AdaGradConfig) Decay(decay float64) *AdaGradConfig {
	c.decay = decay
	return c
}

// Done returns the configured optimizer.
func (c *AdaGradConfig) Done() Interface {
	if c.epsilon <= 0 {
		Panicf("AdaGrad/RMSProp epsilon must be > 0, got %g", c.epsilon)
	}
	name := "adagrad"
	if c.rmsProp {
		name = "rmsprop"
		if c.decay < 0 || c.decay >= 1 {
			Panicf("RMSProp decay must be in the range [0, 1), got %g", c.decay)
		}
	}
	return &adaGrad{config: *c, name: name}
}

type adaGrad struct {
	config AdaGradConfig
	name   string
}

// Step implements Interface.
func (o *adaGrad) Step(ctx *context.Context) {
	vars := trainableVariables(ctx, o.name)
	IncrementGlobalStep(ctx)
	lr := currentLearningRate(ctx, o.config.learningRate)
	for _, v := range vars {
		gradSquared := stateVariable(ctx, o.name, v, "grad_squared")
		p, g, s := v.Value(), v.Grad(), gradSquared.Value()
		if o.config.rmsProp {
			s = o.config.decay*s + (1-o.config.decay)*g*g
		} else {
			s += g * g
		}
		step := lr * (g/(math.Sqrt(s)+o.config.epsilon) + o.config.weightDecay*p)
		if applyStep(ctx, v, step) {
			gradSquared.SetValue(s)
		}
	}
}

// Clear implements Interface.
func (o *adaGrad) Clear(ctx *context.Context) {
	clearState(ctx, o.name)
}
