// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/pkg/ml/context"
)

const (
	// ParamAdamEpsilon can be used to configure the default value of epsilon. It must be a float64.
	ParamAdamEpsilon = "adam_epsilon"

	// ParamAdamBeta1 is the moving average coefficient for the gradient (momentum), the numerator.
	// The default value is 0.9
	ParamAdamBeta1 = "adam_beta1"

	// ParamAdamBeta2 is the moving average coefficient for the variance, the denominator.
	// The default value is 0.999
	ParamAdamBeta2 = "adam_beta2"
)

// AdamConfig holds the configuration for an Adam configuration, create using Adam(), and once configured
// call Done to create an Adam based optimizer.Interface.
type AdamConfig struct {
	learningRate, weightDecay float64
	beta1, beta2, epsilon     float64
}

// Adam optimizer, as described in https://arxiv.org/abs/1412.6980, with an optional weight decay added
// to the step (as opposed to the gradient):
//
//	m1 = beta1 * m1 + (1 - beta1) * g
//	m2 = beta2 * m2 + (1 - beta2) * g²
//	p -= learningRate * (m1 / (1 - beta1^t) / (sqrt(m2 / (1 - beta2^t)) + epsilon) + weightDecay * p)
//
// Where t is the global step, incremented once per Step (see GetGlobalStep).
//
// It returns a configuration object that can be used to set its parameters. Once configured call Done,
// and it will return an optimizer.Interface.
func Adam() *AdamConfig {
	return &AdamConfig{
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-7,
	}
}

// FromContext will configure Adam with hyperparameters set in the given context.
// E.g.: "adam_epsilon" (see [ParamAdamEpsilon]) is used to set [AdamConfig.Epsilon].
func (c *AdamConfig) FromContext(ctx *context.Context) *AdamConfig {
	c.learningRate = context.GetParamOr(ctx, ParamLearningRate, c.learningRate)
	c.weightDecay = context.GetParamOr(ctx, ParamWeightDecay, c.weightDecay)
	c.epsilon = context.GetParamOr(ctx, ParamAdamEpsilon, c.epsilon)
	c.beta1 = context.GetParamOr(ctx, ParamAdamBeta1, c.beta1)
	c.beta2 = context.GetParamOr(ctx, ParamAdamBeta2, c.beta2)
	return c
}

// LearningRate sets the base learning rate as a floating point value -- eventually scheduled by a learning rate
// schedule (see package cosineschedule).
//
// Default is either the value of ParamLearningRate ("learning_rate") global parameter in Context if defined,
// or DefaultLearningRate if not.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	c.learningRate = value
	return c
}

// Betas sets the two moving averages constants (default to 0.9 and 0.999, respectively).
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1 = beta1
	c.beta2 = beta2
	return c
}

// Epsilon used on the denominator as a small constant to avoid division by zero.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// WeightDecay configure optimizer to work as AdamW, with the given static weight decay.
// This is because L2 regularization doesn't work well with Adam.
// Defaults to the value given by the ParamWeightDecay hyperparameter, or 0.0 if that is not set.
func (c *AdamConfig) WeightDecay(weightDecay float64) *AdamConfig {
	c.weightDecay = weightDecay
	return c
}

// Done will finish the configuration and construct an optimizer.Interface that implements Adam.
func (c *AdamConfig) Done() Interface {
	for _, beta := range []float64{c.beta1, c.beta2} {
		if beta < 0 || beta >= 1 {
			Panicf("Adam betas must be in the range [0, 1), got beta1=%g, beta2=%g", c.beta1, c.beta2)
		}
	}
	return &adam{config: *c}
}

// adam implements the Adam algorithm as an optimizers.Interface.
type adam struct {
	config AdamConfig
}

const adamName = "adam"

// Step implements Interface.
func (o *adam) Step(ctx *context.Context) {
	vars := trainableVariables(ctx, adamName)
	t := float64(IncrementGlobalStep(ctx))
	lr := currentLearningRate(ctx, o.config.learningRate)
	c := &o.config
	debias1 := 1 - math.Pow(c.beta1, t)
	debias2 := 1 - math.Pow(c.beta2, t)
	for _, v := range vars {
		moment1 := stateVariable(ctx, adamName, v, "moment1")
		moment2 := stateVariable(ctx, adamName, v, "moment2")
		p, g := v.Value(), v.Grad()
		m1 := c.beta1*moment1.Value() + (1-c.beta1)*g
		m2 := c.beta2*moment2.Value() + (1-c.beta2)*g*g
		step := lr * ((m1/debias1)/(math.Sqrt(m2/debias2)+c.epsilon) + c.weightDecay*p)
		if applyStep(ctx, v, step) {
			moment1.SetValue(m1)
			moment2.SetValue(m2)
		}
	}
}

// Clear implements Interface.
func (o *adam) Clear(ctx *context.Context) {
	clearState(ctx, adamName)
}
