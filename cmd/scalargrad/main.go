// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// scalargrad trains a character-level MLP on a list of names (one per line), predicting each character
// from the previous "block_size" ones, and then generates new names with it.
//
// The hyperparameters are set with -set, e.g.:
//
//	scalargrad -data ~/data/names.txt -set "train_steps=500;hidden_layers=64;activation=tanh;block_size=3"
//
// Run with -help to see all hyperparameters available.
package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/decode"
	"github.com/gomlx/scalargrad/pkg/ml/initializer"
	"github.com/gomlx/scalargrad/pkg/ml/layers/activations"
	"github.com/gomlx/scalargrad/pkg/ml/nn"
	"github.com/gomlx/scalargrad/pkg/ml/train/losses"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers"
	"github.com/gomlx/scalargrad/pkg/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/scalargrad/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDataPath   = flag.String("data", "names.txt", "Text file with one name per line.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory save and load checkpoints from. If left empty, no checkpoints are created.")
	flagPlot       = flag.String("plot", "", "If set, PNG file where to save the plot of the training and evaluation losses.")
	flagVerbosity  = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

// createDefaultContext sets the context with default hyperparameters.
func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		// Data and training loop.
		ParamBlockSize:     2,
		ParamBatchSize:     1000,
		ParamTrainSteps:    100,
		ParamEvalFraction:  0.1,
		ParamNumSamples:    10,
		ParamPlotPoints:    20,
		ParamCheckpointing: 3,

		context.ParamInitialSeed: int64(42),

		// Model.
		nn.ParamHiddenLayers:                     []int{},
		nn.ParamOutputActivation:                 "none",
		activations.ParamActivation:              "relu",
		initializer.ParamInitializer:             "kaiming_uniform",
		initializer.ParamInitializerNonlinearity: "linear",
		losses.ParamLoss:                         "cross_entropy",

		// Optimizer.
		optimizers.ParamOptimizer:           "adam",
		optimizers.ParamLearningRate:        0.01,
		optimizers.ParamWeightDecay:         0.001,
		optimizers.ParamAdamBeta1:           0.9,
		optimizers.ParamAdamBeta2:           0.999,
		optimizers.ParamAdamEpsilon:         1e-7,
		cosineschedule.ParamPeriodSteps:     0,
		cosineschedule.ParamMinLearningRate: 0.0,

		// Generation of names after training.
		decode.ParamStrategy:    "temperature",
		decode.ParamTemperature: 1.0,
		decode.ParamTopK:        5,
		decode.ParamTopP:        0.9,
		decode.ParamMaxLength:   32,
	})
	return ctx
}

func main() {
	// Flags with context settings.
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if *flagVerbosity >= 1 && len(paramsSet) > 0 {
		fmt.Printf("Hyperparameters set:\n%s\n", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	names, err := TrainModel(ctx, *flagDataPath, *flagCheckpoint, *flagPlot, *flagVerbosity, paramsSet)
	if err != nil {
		klog.Fatalf("Failed training: %+v", err)
	}
	if *flagVerbosity >= 0 {
		fmt.Println("\nGenerated names:")
		for _, name := range names {
			fmt.Printf("\t%s\n", name)
		}
	}
}
