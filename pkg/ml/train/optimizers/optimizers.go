// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizers implements a collection of ML optimizers that can be used by train.Trainer,
// or by themselves. They all implement optimizers.Interface.
//
// Optimizers keep their per-parameter state (velocities, moments, ...) as non-trainable variables in the
// context, under the scope "/optimizers/<optimizer name>", so it is saved and restored along with the model
// by package checkpoints.
package optimizers

import (
	"math"

	. "github.com/gomlx/exceptions"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"k8s.io/klog/v2"
)

// Interface implemented by optimizer implementations.
type Interface interface {
	// Step updates in place the values of the trainable variables of ctx (see context.Context.TrainableVariables),
	// using their current gradients. It should be called after graph.Backward on the loss.
	//
	// Non-trainable variables used by the optimizer for its state are created in ctx as needed.
	Step(ctx *context.Context)

	// Clear resets the state kept by the optimizer, e.g.: to restart training.
	Clear(ctx *context.Context)
}

var (
	// KnownOptimizers is a map of known optimizers by name to their default constructors.
	// This provides an easy quick start point. One can hyperparameter-tune the optimizers
	// for usually slightly better results.
	KnownOptimizers = map[string]func(ctx *context.Context) Interface{
		"sgd":      func(ctx *context.Context) Interface { return StochasticGradientDescent().FromContext(ctx).Done() },
		"nesterov": func(ctx *context.Context) Interface { return Nesterov().FromContext(ctx).Done() },
		"adagrad":  func(ctx *context.Context) Interface { return AdaGrad().FromContext(ctx).Done() },
		"rmsprop":  func(ctx *context.Context) Interface { return RMSProp().FromContext(ctx).Done() },
		"adam":     func(ctx *context.Context) Interface { return Adam().FromContext(ctx).Done() },
		"adamw":    func(ctx *context.Context) Interface { return Adam().WeightDecay(0.004).FromContext(ctx).Done() },
	}

	// ParamOptimizer is the context parameter with the name of the optimizer.
	// The default value is "adam", see KnownOptimizers for valid values.
	ParamOptimizer = "optimizer"

	// ParamLearningRate is the context parameter name for the default value of learning rate.
	// It is used by all optimizers.
	ParamLearningRate = "learning_rate"

	// ParamWeightDecay is the context parameter name for the default weight decay (L2 regularization) added
	// to the gradient of each variable: `grad + weight_decay * value`.
	// The default is 0.0, no weight decay.
	ParamWeightDecay = "weight_decay"

	// ParamClipStepByValue is a scalar value used to clip each update step, after
	// being scaled by the learning rate and the optimizer.
	// The step applied will be `Clip(step, -clip_step_by_value, +clip_step_by_value)`.
	// Defaults to no clipping, and values are expected to be float64.
	ParamClipStepByValue = "clip_step_by_value"

	// ParamClipNaN will drop any updates with NaNs (or Inf).
	// This is a double-edged option: it keeps training running, but probably it will replace NaNs with bad training results.
	// It works well to handle spurious results.
	//
	// The default is false.
	ParamClipNaN = "clip_nan"
)

const (
	// DefaultLearningRate used by the optimizers if none is configured.
	DefaultLearningRate = 0.01

	// GlobalStepVariableName as stored in context.Context, in the root scope.
	GlobalStepVariableName = "global_step"

	// Scope reserved for optimizers.
	Scope = "optimizers"
)

// FromContext creates an optimizer from context hyperparameters.
// See [ParamOptimizer]. The default is "adam".
func FromContext(ctx *context.Context) Interface {
	optName := context.GetParamOr(ctx, ParamOptimizer, "adam")
	return ByName(ctx, optName)
}

// ByName returns an optimizer given the name, or panics if one does not exist.
// It uses KnownOptimizers -- in case one wants to better handle invalid values.
//
// Optimizers use optional hyperparameters set in the context for configuration.
//
// See also FromContext.
func ByName(ctx *context.Context, optName string) Interface {
	optBuilder, found := KnownOptimizers[optName]
	if !found {
		Panicf("Unknown optimizer %q, valid values are %v.", optName, Names())
	}
	return optBuilder(ctx)
}

// GetGlobalStepVar returns the global step counter, a non-trainable variable in the root scope.
// It is created with value 0 if it doesn't exist yet.
func GetGlobalStepVar(ctx *context.Context) *context.Variable {
	return ctx.InAbsPath(context.RootScope).Checked(false).
		VariableWithValue(GlobalStepVariableName, 0).SetTrainable(false)
}

// GetGlobalStep returns the current global step value. It is 0 before the first optimizer Step,
// and it is incremented once per Step.
func GetGlobalStep(ctx *context.Context) int64 {
	return int64(GetGlobalStepVar(ctx).Value())
}

// IncrementGlobalStep increments the global step counter and returns its new value.
// Optimizers call it once at the start of their Step.
func IncrementGlobalStep(ctx *context.Context) int64 {
	v := GetGlobalStepVar(ctx)
	step := v.Value() + 1
	v.SetValue(step)
	return int64(step)
}

// LearningRateVar returns the learning rate variable, a non-trainable variable in the optimizers scope.
// If it doesn't exist yet, it is created with initialValue.
// Consider reading the initialValue from context.GetParamOr(ctx, ParamLearningRate, DefaultLearningRate).
//
// Learning rate schedules (see package cosineschedule) change the learning rate by setting this variable.
func LearningRateVar(ctx *context.Context, initialValue float64) *context.Variable {
	return ctx.InAbsPath(context.RootScope).In(Scope).Checked(false).
		VariableWithValue(ParamLearningRate, initialValue).SetTrainable(false)
}

// currentLearningRate returns the value of LearningRateVar, initialized with configured if not 0, or
// with the value of ParamLearningRate otherwise.
func currentLearningRate(ctx *context.Context, configured float64) float64 {
	if configured == 0 {
		configured = context.GetParamOr(ctx, ParamLearningRate, DefaultLearningRate)
	}
	return LearningRateVar(ctx, configured).Value()
}

// stateVariable returns the optimizer state variable with the given suffix for v, creating it with 0 if needed.
// State variables mirror the scope of v under "/optimizers/<optName>".
func stateVariable(ctx *context.Context, optName string, v *context.Variable, suffix string) *context.Variable {
	path := context.RootScope + Scope + context.ScopeSeparator + optName + v.Scope()
	return ctx.InAbsPath(path).Checked(false).
		VariableWithValue(v.Name()+"_"+suffix, 0).SetTrainable(false)
}

// clearState zeroes all the state variables of the optimizer optName.
func clearState(ctx *context.Context, optName string) {
	stateCtx := ctx.InAbsPath(context.RootScope + Scope + context.ScopeSeparator + optName)
	for v := range stateCtx.IterVariablesInScope() {
		v.SetValue(0)
	}
}

// trainableVariables returns the variables to update, and panics if there are none.
func trainableVariables(ctx *context.Context, optName string) []*context.Variable {
	vars := ctx.TrainableVariables()
	if len(vars) == 0 {
		Panicf("optimizer %q: context has no trainable variables to optimize", optName)
	}
	return vars
}

// applyStep subtracts step from the value of v, after applying ParamClipStepByValue and ParamClipNaN.
// It returns false if the step was dropped.
func applyStep(ctx *context.Context, v *context.Variable, step float64) bool {
	if math.IsNaN(step) || math.IsInf(step, 0) {
		if context.GetParamOr(ctx, ParamClipNaN, false) {
			klog.V(2).Infof("dropping non-finite update %g to variable %s", step, v.ScopeAndName())
			return false
		}
	}
	if clipByValue := context.GetParamOr(ctx, ParamClipStepByValue, 0.0); clipByValue > 0 {
		step = math.Max(-clipByValue, math.Min(clipByValue, step))
	}
	v.SetValue(v.Value() - step)
	return true
}

// Names returns the sorted names of the KnownOptimizers.
func Names() []string {
	return xslices.SortedKeys(KnownOptimizers)
}
