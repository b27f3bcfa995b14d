// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/pkg/ml/context"
)

const (
	// ParamSGDMomentum is the context parameter with the momentum (rho) of the SGD and Nesterov optimizers.
	// The default is 0.0 for SGD (no momentum) and 0.9 for Nesterov.
	ParamSGDMomentum = "sgd_momentum"
)

// SGDConfig holds the configuration of the stochastic gradient descent optimizers (with optional momentum
// and Nesterov momentum).
// It's created with StochasticGradientDescent or Nesterov, configured with its methods, and Done returns the
// optimizer.
type SGDConfig struct {
	learningRate, weightDecay, momentum float64
	nesterov                            bool
}

// StochasticGradientDescent creates a configuration for an optimizer that for each variable `p` and gradient
// `g` does:
//
//	v = momentum * v + g
//	p -= learningRate * (v + weightDecay * p)
//
// With the default momentum of 0, this is the plain `p -= learningRate * g` (plus weight decay).
//
// The learning rate is taken from the context (see ParamLearningRate) if not set with LearningRate,
// with a default of DefaultLearningRate.
func StochasticGradientDescent() *SGDConfig {
	return &SGDConfig{}
}

// Nesterov creates an SGD configuration with Nesterov momentum (default momentum 0.9):
//
//	vPrev = v
//	v = momentum * v - learningRate * (g + weightDecay * p)
//	p -= momentum * vPrev - (1 + momentum) * v
func Nesterov() *SGDConfig {
	return &SGDConfig{momentum: 0.9, nesterov: true}
}

// FromContext reads the configuration from the context hyperparameters: ParamLearningRate, ParamWeightDecay and
// ParamSGDMomentum. Values not set in the context are left unchanged.
func (c *SGDConfig) FromContext(ctx *context.Context) *SGDConfig {
	c.learningRate = context.GetParamOr(ctx, ParamLearningRate, c.learningRate)
	c.weightDecay = context.GetParamOr(ctx, ParamWeightDecay, c.weightDecay)
	c.momentum = context.GetParamOr(ctx, ParamSGDMomentum, c.momentum)
	return c
}

// LearningRate sets the initial learning rate. If not set (or set to 0), the value of ParamLearningRate is used,
// or DefaultLearningRate.
func (c *SGDConfig) LearningRate(value float64) *SGDConfig {
	c.learningRate = value
	return c
}

// WeightDecay sets the weight decay. Default is 0.
func (c *SGDConfig) WeightDecay(weightDecay float64) *SGDConfig {
	c.weightDecay = weightDecay
	return c
}

// Momentum sets the momentum (rho) coefficient.
func (c *SGDConfig) Momentum(momentum float64) *SGDConfig {
	c.momentum = momentum
	return c
}

// Done returns the configured optimizer.
func (c *SGDConfig) Done() Interface {
	if c.momentum < 0 || c.momentum >= 1 {
		Panicf("SGD momentum must be in the range [0, 1), got %g", c.momentum)
	}
	name := "sgd"
	if c.nesterov {
		name = "nesterov"
	}
	return &sgd{config: *c, name: name}
}

type sgd struct {
	config SGDConfig
	name   string
}

// Step implements Interface.
func (o *sgd) Step(ctx *context.Context) {
	vars := trainableVariables(ctx, o.name)
	IncrementGlobalStep(ctx)
	lr := currentLearningRate(ctx, o.config.learningRate)
	rho, wd := o.config.momentum, o.config.weightDecay
	for _, v := range vars {
		velocity := stateVariable(ctx, o.name, v, "velocity")
		p, g, vel := v.Value(), v.Grad(), velocity.Value()
		var step float64
		if o.config.nesterov {
			newVel := rho*vel - lr*(g+wd*p)
			step = rho*vel - (1+rho)*newVel
			vel = newVel
		} else {
			vel = rho*vel + g
			step = lr * (vel + wd*p)
		}
		if applyStep(ctx, v, step) {
			velocity.SetValue(vel)
		}
	}
}

// Clear implements Interface.
func (o *sgd) Clear(ctx *context.Context) {
	clearState(ctx, o.name)
}
