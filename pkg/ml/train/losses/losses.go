// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package losses have several standard losses that implement train.LossFn interface. They can also
// be called by themselves.
//
// All losses take the model outputs (predictions or logits) and the labels of one example, and return a
// single node with the loss. Classification labels are one-hot encoded: the index of the first non-zero
// label is taken as the true class.
package losses

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/ml/context"
)

const (
	// ParamLoss defines the loss to use when calling LossFromContext.
	// See KnownLosses for the valid values. The default is "cross_entropy".
	ParamLoss = "loss"

	// ParamHingeMargin is the margin used by the "hinge" loss when created with LossFromContext.
	// The default is 1.0.
	ParamHingeMargin = "hinge_margin"
)

// LossFn is the signature of the losses: they take the model outputs and the labels of one example.
type LossFn func(predictions []*Node, labels []float64) *Node

// KnownLosses are the losses that can be selected by name, see LossFromContext.
var KnownLosses = map[string]func(ctx *context.Context) LossFn{
	"cross_entropy": func(_ *context.Context) LossFn { return CategoricalCrossEntropyLogits },
	"hinge": func(ctx *context.Context) LossFn {
		return MakeHingeLoss(context.GetParamOr(ctx, ParamHingeMargin, 1.0))
	},
	"mse": func(_ *context.Context) LossFn { return MeanSquaredError },
}

// LossFromContext returns the loss selected by the ParamLoss hyperparameter.
// It panics if the loss is unknown.
func LossFromContext(ctx *context.Context) LossFn {
	name := context.GetParamOr(ctx, ParamLoss, "cross_entropy")
	builder, found := KnownLosses[name]
	if !found {
		Panicf("unknown loss %q given in hyperparameter %q", name, ParamLoss)
	}
	return builder(ctx)
}

// TruthIndex returns the index of the first non-zero label, or 0 if all labels are zero.
func TruthIndex(labels []float64) int {
	for ii, label := range labels {
		if label != 0 {
			return ii
		}
	}
	return 0
}

func checkSizes(lossName string, predictions []*Node, labels []float64) {
	if len(predictions) == 0 {
		Panicf("%s: no predictions given", lossName)
	}
	if len(predictions) != len(labels) {
		Panicf("%s: number of predictions (%d) doesn't match the number of labels (%d)",
			lossName, len(predictions), len(labels))
	}
}

// CategoricalCrossEntropyLogits returns the cross-entropy loss of the logits, given the one-hot labels:
//
//	loss = -logits[truth] + log(Σᵢ exp(logitsᵢ))
//
// It is computed as `-logits[truth] + max + log(Σᵢ exp(logitsᵢ - max))` for numerical stability, where
// max is the largest of the logits. The max node takes part in the expression, so its gradient contributions
// cancel out.
func CategoricalCrossEntropyLogits(logits []*Node, labels []float64) *Node {
	checkSizes("CategoricalCrossEntropyLogits", logits, labels)
	logitsMax := logits[0]
	for _, logit := range logits[1:] {
		if GreaterThan(logit, logitsMax) {
			logitsMax = logit
		}
	}
	shifted := make([]*Node, len(logits))
	for ii, logit := range logits {
		shifted[ii] = Exp(Sub(logit, logitsMax))
	}
	logSumExp := Log(ReduceSum(shifted...))
	truth := logits[TruthIndex(labels)]
	return Add(Add(Neg(truth), logitsMax), logSumExp)
}

// MakeHingeLoss returns a multi-class hinge (SVM) loss with the given margin:
//
//	loss = Σ_{i≠truth} max(0, predictionsᵢ - predictions[truth] + margin)
func MakeHingeLoss(margin float64) LossFn {
	return func(predictions []*Node, labels []float64) *Node {
		checkSizes("HingeLoss", predictions, labels)
		truthIdx := TruthIndex(labels)
		truth := predictions[truthIdx]
		if len(predictions) == 1 {
			return MulScalar(truth, 0)
		}
		terms := make([]*Node, 0, len(predictions)-1)
		for ii, prediction := range predictions {
			if ii == truthIdx {
				continue
			}
			diff := AddScalar(Sub(prediction, truth), margin)
			terms = append(terms, Max(Scalar(diff, 0), diff))
		}
		return ReduceSum(terms...)
	}
}

// Hinge is the multi-class hinge loss with margin 1, see MakeHingeLoss.
func Hinge(predictions []*Node, labels []float64) *Node {
	return MakeHingeLoss(1.0)(predictions, labels)
}

// MeanSquaredError returns the mean of the squared difference between predictions and labels:
//
//	loss = Σᵢ (predictionsᵢ - labelsᵢ)² / n
func MeanSquaredError(predictions []*Node, labels []float64) *Node {
	checkSizes("MeanSquaredError", predictions, labels)
	terms := make([]*Node, len(predictions))
	for ii, prediction := range predictions {
		terms[ii] = Square(AddScalar(prediction, -labels[ii]))
	}
	return ReduceMean(terms...)
}
