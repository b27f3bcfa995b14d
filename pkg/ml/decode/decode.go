// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package decode generates words autoregressively with a character-level model trained on
// datasets.BuildDataset examples: the model is fed the one-hot encoding of the last blockSize tokens, and
// the next token is sampled from its logits, until datasets.EndToken is generated.
package decode

import (
	"fmt"
	"slices"

	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/scalargrad/pkg/core/graph"
	"github.com/gomlx/scalargrad/pkg/ml/context"
	"github.com/gomlx/scalargrad/pkg/ml/datasets"
	"github.com/gomlx/scalargrad/pkg/ml/decode/sample"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Hyperparameter keys for context configuration
const (
	ParamMaxLength   = "decode_max_length"
	ParamStrategy    = "decode_strategy"
	ParamTemperature = "decode_temperature"
	ParamTopK        = "decode_top_k"
	ParamTopP        = "decode_top_p"
)

// Decoder configures and executes autoregressive generation.
type Decoder struct {
	ModelFn   train.ModelFn
	Vocab     *datasets.Vocabulary
	BlockSize int

	// Generation parameters
	MaxLength   int
	Strategy    sample.Strategy
	Temperature float64
	TopK        int
	TopP        float64
}

// New creates a decoder for a model trained with the given vocabulary and block size (the number of
// tokens in its context window).
//
// The default is temperature sampling with temperature 1, and words of at most 32 characters.
func New(modelFn train.ModelFn, vocab *datasets.Vocabulary, blockSize int) *Decoder {
	return &Decoder{
		ModelFn:     modelFn,
		Vocab:       vocab,
		BlockSize:   blockSize,
		MaxLength:   32,
		Strategy:    sample.StrategyTemperature,
		Temperature: 1.0,
		TopK:        5,
		TopP:        0.9,
	}
}

// FromContext configures the decoder with hyperparameters from the context. Parameters not set are left
// unchanged.
//
// Supported hyperparameters:
//   - decode_max_length: Maximum generated length.
//   - decode_strategy: Sampling strategy ("greedy", "temperature", "top_k", "top_p").
//   - decode_temperature: Temperature for sampling.
//   - decode_top_k: k for top-k sampling.
//   - decode_top_p: p for nucleus sampling.
func (cfg *Decoder) FromContext(ctx *context.Context) *Decoder {
	cfg.MaxLength = context.GetParamOr(ctx, ParamMaxLength, cfg.MaxLength)
	cfg.Strategy = context.GetParamOr(ctx, ParamStrategy, cfg.Strategy)
	cfg.Temperature = context.GetParamOr(ctx, ParamTemperature, cfg.Temperature)
	cfg.TopK = context.GetParamOr(ctx, ParamTopK, cfg.TopK)
	cfg.TopP = context.GetParamOr(ctx, ParamTopP, cfg.TopP)
	return cfg
}

// WithMaxLength sets the maximum generation length (including prompt).
func (cfg *Decoder) WithMaxLength(maxLength int) *Decoder {
	cfg.MaxLength = maxLength
	return cfg
}

// WithStrategy sets the sampling strategy.
func (cfg *Decoder) WithStrategy(strategy sample.Strategy) *Decoder {
	cfg.Strategy = strategy
	return cfg
}

// WithTemperature sets the temperature for sampling.
// Higher values (>1.0) increase randomness, lower values (<1.0) make output more deterministic.
func (cfg *Decoder) WithTemperature(temperature float64) *Decoder {
	cfg.Temperature = temperature
	return cfg
}

// WithTopK sets k for top-k sampling.
func (cfg *Decoder) WithTopK(topK int) *Decoder {
	cfg.TopK = topK
	return cfg
}

// WithTopP sets p for nucleus sampling.
func (cfg *Decoder) WithTopP(topP float64) *Decoder {
	cfg.TopP = topP
	return cfg
}

// validate checks that the decoder configuration is valid.
func (cfg *Decoder) validate() error {
	if cfg.ModelFn == nil {
		return errors.New("decoder requires a ModelFn")
	}
	if cfg.Vocab == nil {
		return errors.New("decoder requires a Vocabulary")
	}
	if cfg.BlockSize <= 0 {
		return errors.Errorf("decoder requires BlockSize > 0, got %d", cfg.BlockSize)
	}
	if cfg.MaxLength <= 0 {
		return errors.Errorf("decoder requires MaxLength > 0, got %d", cfg.MaxLength)
	}
	return nil
}

// NextLogits runs the model on the one-hot encoding of the window tokens and returns its logits.
// The nodes created are released before returning.
//
// The model variables must already exist in ctx (the model trained or loaded from a checkpoint).
// Variables created by the model are removed from ctx, and an error is returned.
func (cfg *Decoder) NextLogits(ctx *context.Context, window []int) (logits []float64, err error) {
	err = TryCatch[error](func() {
		g := ctx.Graph()
		numVars := ctx.NumVariables()
		mark := g.Mark()
		defer g.Release(mark)
		inputs := xslices.Map(datasets.EncodeContext(window, cfg.Vocab.Size()),
			func(v float64) *Node { return Leaf(g, v) })
		outputs := cfg.ModelFn(ctx, inputs)
		if newVars := ctx.NumVariables() - numVars; newVars > 0 {
			// The nodes of the new variables are released by the deferred Release.
			for _, v := range slices.Collect(ctx.IterVariables())[numVars:] {
				ctx.DeleteVariable(v.Scope(), v.Name())
			}
			Panicf("model created %d new variables while decoding, it must be trained or loaded first", newVars)
		}
		logits = xslices.Map(outputs, (*Node).Value)
	})
	if err != nil {
		return nil, err
	}
	if len(logits) != cfg.Vocab.Size() {
		return nil, errors.Errorf("model returned %d logits, but vocabulary has %d tokens", len(logits), cfg.Vocab.Size())
	}
	return logits, nil
}

// Decode generates the continuation of the prompt, until the model generates datasets.EndToken or the
// result reaches MaxLength characters. It returns the prompt followed by the generated characters.
//
// Sampling uses the context random source (see context.Context.RandomSource).
func (cfg *Decoder) Decode(ctx *context.Context, prompt string) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", errors.WithMessagef(err, "invalid decoder config")
	}
	promptTokens, err := cfg.Vocab.Encode(prompt)
	if err != nil {
		return "", err
	}
	if len(promptTokens) >= cfg.MaxLength {
		return "", errors.Errorf("prompt length %d >= max length %d", len(promptTokens), cfg.MaxLength)
	}

	tokens := append(make([]int, cfg.BlockSize), promptTokens...)
	rng := ctx.RandomSource()
	for len(tokens)-cfg.BlockSize < cfg.MaxLength {
		logits, err := cfg.NextLogits(ctx, tokens[len(tokens)-cfg.BlockSize:])
		if err != nil {
			return "", err
		}
		next, err := sample.SampleWithStrategy(rng, logits, cfg.Strategy, cfg.Temperature, cfg.TopK, cfg.TopP)
		if err != nil {
			return "", err
		}
		if next == 0 {
			break
		}
		tokens = append(tokens, next)
	}
	return cfg.Vocab.Decode(tokens[cfg.BlockSize:]), nil
}

// Generate numWords words, each starting from an empty prompt.
func (cfg *Decoder) Generate(ctx *context.Context, numWords int) ([]string, error) {
	words := make([]string, 0, numWords)
	for range numWords {
		word, err := cfg.Decode(ctx, "")
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	return words, nil
}

// String returns a description of the decoder configuration.
func (cfg *Decoder) String() string {
	switch cfg.Strategy {
	case sample.StrategyTemperature:
		return fmt.Sprintf("Decoder(strategy=%s, temperature=%g)", cfg.Strategy, cfg.Temperature)
	case sample.StrategyTopK:
		return fmt.Sprintf("Decoder(strategy=%s, top_k=%d, temperature=%g)", cfg.Strategy, cfg.TopK, cfg.Temperature)
	case sample.StrategyTopP:
		return fmt.Sprintf("Decoder(strategy=%s, top_p=%g, temperature=%g)", cfg.Strategy, cfg.TopP, cfg.Temperature)
	default:
		return fmt.Sprintf("Decoder(strategy=%s)", cfg.Strategy)
	}
}
