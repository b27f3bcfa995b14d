// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds tools to help run a training loop: Trainer runs one training step (or evaluation), and
// Loop runs the Trainer over a Dataset, calling hooks (progress bars, plots, checkpoints) along the way.
package train

import (
	"io"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/core/graph/nanlogger"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/train/losses"
	"github.com/gomlx/scalargrad/pkg/ml/train/metrics"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ModelFn builds the model for one example: it takes the inputs as leaf nodes and returns the outputs
// (predictions or logits), that are passed to the loss.
//
// The model variables should be created in ctx (see context.Context.VariableWithFan), typically by an
// nn.Module built before training.
type ModelFn func(ctx *context.Context, inputs []*Node) (outputs []*Node)

// Trainer runs the training steps (and evaluation) of a model: for each batch it builds the expression of the
// mean loss over the examples, runs Backward, checks for NaNs, releases the nodes of the expression and calls the
// optimizer.
//
// It also keeps train and evaluation metrics. The first train metrics are always the batch loss and its moving
// average, the first evaluation metric is always the mean loss.
type Trainer struct {
	ctx       *context.Context
	modelFn   ModelFn
	lossFn    losses.LossFn
	optimizer optimizers.Interface

	trainMetrics, evalMetrics []metrics.Interface
	nanLogger                 *nanlogger.NanLogger
}

// NewTrainer constructs a trainer that can be used for training steps and evaluation.
//
// The trainMetrics and evalMetrics are additional metrics to the loss metrics, which are always included.
func NewTrainer(ctx *context.Context, modelFn ModelFn, lossFn losses.LossFn, optimizer optimizers.Interface,
	trainMetrics, evalMetrics []metrics.Interface) *Trainer {
	r := &Trainer{
		ctx:       ctx,
		modelFn:   modelFn,
		lossFn:    lossFn,
		optimizer: optimizer,
	}
	r.trainMetrics = append([]metrics.Interface{metrics.NewBatchLoss(), metrics.NewMovingAverageLoss(0.01)},
		trainMetrics...)
	r.evalMetrics = append([]metrics.Interface{metrics.NewMeanLoss()}, evalMetrics...)
	return r
}

// WithNanLogger sets a nanlogger.NanLogger that is checked after each step: the trainer traces the loss,
// and the model function may trace any other node. A non-finite value makes the step fail, and the
// optimizer is not called.
func (r *Trainer) WithNanLogger(nanLogger *nanlogger.NanLogger) *Trainer {
	r.nanLogger = nanLogger
	return r
}

// NanLogger returns the configured nanlogger.NanLogger, or nil.
func (r *Trainer) NanLogger() *nanlogger.NanLogger {
	return r.nanLogger
}

// Context returns the current Context. See SetContext to change it.
func (r *Trainer) Context() *context.Context {
	return r.ctx
}

// SetContext sets the context used by the trainer, e.g. a Context.Reuse() version of it. It must share the
// data (variables) of the original context.
func (r *Trainer) SetContext(ctx *context.Context) {
	r.ctx = ctx
}

// GlobalStep returns the number of optimizer steps taken so far, see optimizers.GetGlobalStep.
func (r *Trainer) GlobalStep() int64 {
	return optimizers.GetGlobalStep(r.ctx)
}

// TrainMetrics returns the train metrics, in the order of the values returned by TrainStep.
func (r *Trainer) TrainMetrics() []metrics.Interface {
	return r.trainMetrics
}

// EvalMetrics returns the evaluation metrics, in the order of the values returned by Eval.
func (r *Trainer) EvalMetrics() []metrics.Interface {
	return r.evalMetrics
}

// ResetTrainMetrics resets the state of the train metrics, e.g.: moving averages.
func (r *Trainer) ResetTrainMetrics() {
	for _, m := range r.trainMetrics {
		m.Reset()
	}
}

// TrainStep runs one training step on the batch, and returns the values of the train metrics. The first value
// is the batch mean loss.
//
// Errors building the model (panics) are returned as errors, and in that case the optimizer is not called.
func (r *Trainer) TrainStep(batch []Example) (values []float64, err error) {
	var b *metrics.Batch
	err = TryCatch[error](func() {
		b = r.runStep(batch, true)
		r.optimizer.Step(r.ctx)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "Trainer.TrainStep(global_step=%d)", r.GlobalStep())
	}
	return updateMetrics(r.trainMetrics, b), nil
}

// EvalStep updates the evaluation metrics with one batch, and returns their current values.
// No gradients are computed.
func (r *Trainer) EvalStep(batch []Example) (values []float64, err error) {
	var b *metrics.Batch
	err = TryCatch[error](func() {
		b = r.runStep(batch, false)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "Trainer.EvalStep()")
	}
	return updateMetrics(r.evalMetrics, b), nil
}

// Eval resets the evaluation metrics and the dataset, and evaluates the whole dataset (until it returns io.EOF).
// It returns the values of the evaluation metrics. The first value is the mean loss.
func (r *Trainer) Eval(ds Dataset) (values []float64, err error) {
	for _, m := range r.evalMetrics {
		m.Reset()
	}
	ds.Reset()
	defer ds.Reset()
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "Trainer.Eval(): failed reading dataset %q", ds.Name())
		}
		values, err = r.EvalStep(batch)
		if err != nil {
			return nil, err
		}
	}
	if values == nil {
		return nil, errors.Errorf("Trainer.Eval(): dataset %q yielded no batches", ds.Name())
	}
	return values, nil
}

func updateMetrics(ms []metrics.Interface, b *metrics.Batch) []float64 {
	return xslices.Map(ms, func(m metrics.Interface) float64 { return m.Update(b) })
}

// runStep builds the loss expression of the batch, and if train is set runs Backward on it.
// The nodes of the expression are released before returning. It panics on errors.
func (r *Trainer) runStep(batch []Example, train bool) *metrics.Batch {
	if len(batch) == 0 {
		Panicf("empty batch given to Trainer")
	}
	g := r.ctx.Graph()
	numVars := r.ctx.NumVariables()
	mark := g.Mark()
	defer func() {
		r.nanLogger.Reset()
		r.release(mark, numVars)
	}()

	if train {
		r.ctx.ZeroGrads()
	}
	b := &metrics.Batch{
		Labels:      make([][]float64, len(batch)),
		Predictions: make([][]float64, len(batch)),
	}
	lossTerms := make([]*Node, len(batch))
	for ii, example := range batch {
		inputs := xslices.Map(example.Inputs, func(v float64) *Node { return Leaf(g, v) })
		outputs := r.modelFn(r.ctx, inputs)
		lossTerms[ii] = r.lossFn(outputs, example.Labels)
		b.Labels[ii] = example.Labels
		b.Predictions[ii] = xslices.Map(outputs, (*Node).Value)
	}
	loss := ReduceMean(lossTerms...)
	r.nanLogger.TraceWithScope([]string{"loss"}, loss)
	if train {
		Backward(loss)
	}
	b.Loss = loss.Value()
	if err := r.nanLogger.Check(); err != nil {
		panic(err)
	}
	return b
}

// release the nodes created since mark, except variables created in the step (e.g.: variables created lazily
// by the model function on its first call), and everything created before them.
func (r *Trainer) release(mark NodeId, numVars int) {
	if r.ctx.NumVariables() > numVars {
		var ii int
		for v := range r.ctx.IterVariables() {
			if ii >= numVars && v.Node().Id() >= mark {
				mark = v.Node().Id() + 1
			}
			ii++
		}
		klog.V(1).Infof("Trainer: %d variables created during step, keeping nodes before #%d",
			r.ctx.NumVariables()-numVars, mark)
	}
	r.ctx.Graph().Release(mark)
}
