// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cosineschedule implements a cosine annealing schedule for the learning rate.
// See New for details and example of usage, and original paper description in [1]
//
// [1] https://paperswithcode.com/method/cosine-annealing.
package cosineschedule

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
)

// HookName is the name of the hooks registered by Config.AttachToLoop.
const HookName = "cosineschedule"

var (
	// ParamPeriodSteps enables cosine annealing (cosine schedule) for the learning rate.
	//
	// This parameter defines the number of steps in a cosine annealing period.
	//
	//  * 0: Disables cosine annealing (default).
	//  * Positive value: Sets the period to the specified number of steps.
	//
	// It's common to use only one period, set to the number of training steps.
	ParamPeriodSteps = "cosine_schedule_steps"

	// ParamWarmUpSteps is the number of warmup steps: during these initial steps the learning rate
	// linearly increases from the minimum learning rate to the learning rate defined by ParamLearningRate.
	//
	// The default is 0, which means no warmup.
	ParamWarmUpSteps = "cosine_schedule_warmup_steps"

	// ParamMinLearningRate is the minimum value of the learning rate during the
	// cosine annealing schedule. The default is 0.0.
	ParamMinLearningRate = "cosine_schedule_min_learning_rate"
)

// Config of the cosine annealing schedule strategy.
// New creates it and once configured, call Config.Done to update the learning rate.
type Config struct {
	ctx                           *context.Context
	learningRate, minLearningRate float64
	periodNumSteps                int
	warmUpSteps                   int
}

// New creates a configuration to apply a cosine annealing schedule for the learning rate.
// See details https://paperswithcode.com/method/cosine-annealing.
//
// It returns a Config that can be configured. When finished configuring, call
// `Done` and it will set the learning rate variable (see optimizers.LearningRateVar) for the current
// training step (see optimizers.GetGlobalStep). It is meant to be called at every training step, typically
// in the model function.
//
// Example with only one cycle, and a warmup of 100 steps. We assume *flagNumSteps is the number of training steps,
// and that the learning rate is set in the context as the parameter "learning_rate" (== optimizers.ParamLearningRate).
//
//	func MyModel(ctx *context.Context, inputs []*Node) []*Node {
//		cosineschedule.New(ctx).
//			MinLearningRate(0.001).
//			WarmUpSteps(100).
//			PeriodInSteps(*flagNumSteps).Done()
//		...
//	}
//
// With a training loop, prefer Config.AttachToLoop: the learning rate is then updated once per step,
// instead of once per example of the batch.
//
// Or more simply, pass the hyperparameters in the context (see ParamPeriodSteps, ParamMinLearningRate, and
// ParamWarmUpSteps):
//
//	func MyModel(ctx *context.Context, inputs []*Node) []*Node {
//		cosineschedule.New(ctx).FromContext().Done()
//		...
//	}
func New(ctx *context.Context) *Config {
	return &Config{
		ctx: ctx,
	}
}

// FromContext configures the cosine annealing from the context, using the keys
// [ParamPeriodSteps], [ParamMinLearningRate] and [ParamWarmUpSteps].
func (opt *Config) FromContext() *Config {
	opt.periodNumSteps = context.GetParamOr(opt.ctx, ParamPeriodSteps, 0)
	opt.learningRate = context.GetParamOr(opt.ctx, optimizers.ParamLearningRate, 0.0)
	opt.minLearningRate = context.GetParamOr(opt.ctx, ParamMinLearningRate, 0.0)
	opt.warmUpSteps = context.GetParamOr(opt.ctx, ParamWarmUpSteps, 0)
	return opt
}

// PeriodInSteps sets the number of steps for one period of the cosine schedule. The effective
// learning rate decreases over the given period of training steps and then is restarted at
// each new period.
//
// It's common to use only one period (so no annealing, just a cosine schedule), in which case
// set to the number of steps that will be used for training.
//
// If set to 0 (the default), the cosine annealing schedule is silently disabled.
func (opt *Config) PeriodInSteps(periodSteps int) *Config {
	opt.periodNumSteps = periodSteps
	return opt
}

// MinLearningRate at the end of the cosine cycle. Defaults to 0.0.
func (opt *Config) MinLearningRate(minLearningRate float64) *Config {
	opt.minLearningRate = minLearningRate
	return opt
}

// WarmUpSteps sets the number of steps to linearly increase the learning rate up to the
// learning rate defined by ParamLearningRate.
//
// The default is 0, which means no warmup.
func (opt *Config) WarmUpSteps(warmUpSteps int) *Config {
	opt.warmUpSteps = warmUpSteps
	return opt
}

// LearningRate at the start of the cosine cycle.
// If not given, it will try to read from the context params (keyed by ParamLearningRate).
// If neither is set, Done panics.
func (opt *Config) LearningRate(learningRate float64) *Config {
	opt.learningRate = learningRate
	return opt
}

// LearningRateAt returns the scheduled learning rate after the given number of training steps.
func (opt *Config) LearningRateAt(step int64) float64 {
	lrMax, lrMin := opt.learningRate, opt.minLearningRate
	var ratio float64
	if step < int64(opt.warmUpSteps) {
		ratio = float64(step) / float64(opt.warmUpSteps)
	} else {
		cycle := float64(step-int64(opt.warmUpSteps)) / float64(opt.periodNumSteps)
		// A cycle represents the fraction of a half-circle (180 degrees, or pi radians).
		cycle -= math.Floor(cycle)
		ratio = (math.Cos(cycle*math.Pi) + 1) / 2 // from 0.0 to 1.0
	}
	return ratio*(lrMax-lrMin) + lrMin
}

// Done finalizes the configuration of New and sets the learning rate for the current global step.
//
// If invalid options are given, it panics.
func (opt *Config) Done() {
	if opt.periodNumSteps == 0 {
		return
	}
	if opt.periodNumSteps < 0 || opt.warmUpSteps < 0 {
		Panicf("cosineschedule: invalid period (%d) or warm-up (%d) steps", opt.periodNumSteps, opt.warmUpSteps)
	}
	if opt.learningRate == 0 {
		opt.learningRate = context.GetParamOr(opt.ctx, optimizers.ParamLearningRate, 0.0)
		if opt.learningRate == 0 {
			Panicf("learning rate not configured for New and also "+
				"not set in the context as parameter %q", optimizers.ParamLearningRate)
		}
	}
	lr := opt.LearningRateAt(optimizers.GetGlobalStep(opt.ctx))
	optimizers.LearningRateVar(opt.ctx, opt.learningRate).SetValue(lr)
}

// AttachToLoop sets the learning rate when the loop starts, and again after each step for the next one.
// Done is called by the hooks, and its panics are returned as errors.
//
// The learning rate and global step variables are created when the loop starts, before any node of
// the first training step.
func (opt *Config) AttachToLoop(loop *train.Loop) {
	update := func() error {
		return TryCatch[error](opt.Done)
	}
	loop.OnStart(HookName, -100, func(_ *train.Loop, _ train.Dataset) error {
		return update()
	})
	loop.OnStep(HookName, -100, func(_ *train.Loop, _ []float64) error {
		return update()
	})
}
