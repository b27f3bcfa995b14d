// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/core/graph/nanlogger"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/context/checkpoints"
	"github.com/gomlx/scalargrad/pkg/ml/datasets"
	"github.com/gomlx/scalargrad/pkg/ml/decode"
	"github.com/gomlx/scalargrad/pkg/ml/initializer"
	"github.com/gomlx/scalargrad/pkg/ml/nn"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/ml/train/losses"
	"github.com/gomlx/scalargrad/pkg/ml/train/metrics"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/scalargrad/ui/commandline"
	"github.com/gomlx/scalargrad/ui/plots"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

// Hyperparameters of the training program, see createDefaultContext for their default values.
const (
	// ParamBlockSize is the number of previous characters used to predict the next one.
	ParamBlockSize = "block_size"

	// ParamBatchSize is the number of examples per training step. The loss is the mean over the batch.
	ParamBatchSize = "batch_size"

	// ParamTrainSteps is the global step up to which to train. If a checkpoint is loaded with a larger
	// global step, no training happens.
	ParamTrainSteps = "train_steps"

	// ParamEvalFraction is the fraction of the examples held out for validation. If 0, there is no validation.
	ParamEvalFraction = "eval_fraction"

	// ParamNumSamples is the number of names generated after training.
	ParamNumSamples = "num_samples"

	// ParamPlotPoints is the number of times during training the metrics are evaluated for the plot.
	ParamPlotPoints = "plot_points"

	// ParamCheckpointing is the number of checkpoints saved during training (and kept) when checkpointing.
	ParamCheckpointing = "num_checkpoints"
)

// ParamsExcludedFromSaving is the list of parameters (see createDefaultContext) that shouldn't be saved
// along on the models checkpoints, and may be overwritten in further training sessions.
var ParamsExcludedFromSaving = []string{
	ParamTrainSteps, ParamNumSamples, ParamPlotPoints, ParamCheckpointing,
}

// TrainModel with hyperparameters given in ctx, on the names read from dataPath, and returns the names
// generated by the trained model.
//
// If checkpointPath is given, the model is loaded from it (if one was saved before) and saved to it.
// If plotPath is given, a PNG with the plot of the losses is saved there.
// paramsSet are the hyperparameters set by the user, which take precedence over the ones saved in the
// checkpoint.
func TrainModel(ctx *context.Context, dataPath, checkpointPath, plotPath string, verbosity int, paramsSet []string) (
	names []string, err error) {
	err = TryCatch[error](func() {
		names = trainModel(ctx, dataPath, checkpointPath, plotPath, verbosity, paramsSet)
	})
	return
}

func trainModel(ctx *context.Context, dataPath, checkpointPath, plotPath string, verbosity int, paramsSet []string) []string {
	// Checkpoints loading: it restores the hyperparameters saved, so it comes first.
	var checkpoint *checkpoints.Handler
	if checkpointPath != "" {
		numCheckpoints := context.GetParamOr(ctx, ParamCheckpointing, 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			Dir(checkpointPath).
			Keep(numCheckpoints).
			ExcludeParams(append(paramsSet, ParamsExcludedFromSaving...)...).
			Done())
		if verbosity >= 1 {
			fmt.Printf("Checkpointing model to %q\n", checkpoint.Dir())
		}
	}
	if verbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}
	ctx.RngStateReset()

	// Datasets.
	words := must.M1(datasets.ReadWords(dataPath))
	vocab := datasets.NewVocabulary(words)
	blockSize := context.GetParamOr(ctx, ParamBlockSize, 2)
	examples := must.M1(datasets.BuildDataset(words, vocab, blockSize))
	if verbosity >= 1 {
		fmt.Printf("Read %d names with %d different characters: %d examples\n", len(words), vocab.Size()-1, len(examples))
	}
	trainDS, evalDatasets := createDatasets(ctx, examples)

	// Model: its variables are created (or loaded from the checkpoint) under the "model" scope.
	modelCtx := ctx.In("model").WithInitializer(must.M1(initializer.FromContext(ctx)))
	mlp := nn.NewMLPFromContext(modelCtx, blockSize*vocab.Size(), vocab.Size())
	modelFn := func(_ *context.Context, inputs []*Node) []*Node {
		return mlp.Forward(inputs)
	}
	if verbosity >= 1 {
		fmt.Printf("Model: %d layers, %d parameters\n", mlp.NumLayers(), len(mlp.Parameters()))
	}

	trainer := train.NewTrainer(ctx, modelFn, losses.LossFromContext(ctx), optimizers.FromContext(ctx),
		[]metrics.Interface{metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)},
		[]metrics.Interface{metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")}).
		WithNanLogger(nanlogger.New())

	// Training loop with its hooks.
	loop := train.NewLoop(trainer)
	cosineschedule.New(ctx).FromContext().AttachToLoop(loop)
	if verbosity >= 1 {
		commandline.AttachProgressBar(loop)
	}
	numTrainSteps := context.GetParamOr(ctx, ParamTrainSteps, 0)
	if checkpoint != nil {
		numCheckpoints := max(context.GetParamOr(ctx, ParamCheckpointing, 3), 1)
		train.EveryNSteps(loop, max(numTrainSteps/numCheckpoints, 1), "checkpointing", 100, checkpoint.OnStepFn)
	}
	if plotPath != "" {
		png := must.M1(plots.New(plotPath).WithEvalDatasets(evalDatasets...).WithCheckpoint(checkpoint))
		defer func() { must.M(png.Close()) }()
		numPlotPoints := max(context.GetParamOr(ctx, ParamPlotPoints, 20), 1)
		png.AttachToLoop(loop, max(numTrainSteps/numPlotPoints, 1))
	}

	globalStep := int(trainer.GlobalStep())
	if globalStep < numTrainSteps {
		_ = must.M1(loop.RunToGlobalStep(trainDS, numTrainSteps))
		if verbosity >= 1 {
			fmt.Printf("\t[Step %d] median train step: %s\n", loop.LoopStep, commandline.FormatDuration(loop.MedianTrainStepDuration()))
		}
	} else {
		klog.Infof("Target %s=%d already reached at global step %d: set a larger value to train further.",
			ParamTrainSteps, numTrainSteps, globalStep)
	}

	if verbosity >= 1 {
		fmt.Println()
		must.M(commandline.ReportEval(trainer, evalDatasets...))
	}

	// Generate names.
	decoder := decode.New(modelFn, vocab, blockSize).FromContext(ctx)
	klog.V(1).Infof("Generating names with %s", decoder)
	return must.M1(decoder.Generate(ctx, context.GetParamOr(ctx, ParamNumSamples, 10)))
}

// createDatasets splits the examples in train and validation (see ParamEvalFraction), and returns the
// shuffled and looping training dataset, and the datasets used for evaluation.
func createDatasets(ctx *context.Context, examples []train.Example) (trainDS train.Dataset, evalDatasets []train.Dataset) {
	batchSize := context.GetParamOr(ctx, ParamBatchSize, 1000)
	datasets.ShuffleExamples(ctx.RandomSource(), examples)
	base := must.M1(datasets.InMemory("names", examples))
	if evalFraction := context.GetParamOr(ctx, ParamEvalFraction, 0.0); evalFraction > 0 {
		var validation *datasets.InMemoryDataset
		base, validation = must.M2(base.Split(1 - evalFraction))
		evalDatasets = append(evalDatasets, validation.SetName("validation").BatchSize(batchSize, false))
	}
	evalDatasets = append([]train.Dataset{base.Copy().SetName("train").BatchSize(batchSize, false)}, evalDatasets...)
	trainDS = base.Copy().SetName("batched train").
		WithRand(ctx.RandomSource()).
		Shuffle().
		BatchSize(batchSize, false).
		Infinite(true)
	return
}
