// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

// Example is one input/labels pair of a dataset.
type Example struct {
	// Inputs are fed as leaves to the model.
	Inputs []float64

	// Labels are passed to the loss, e.g. one-hot encoded classes.
	Labels []float64
}

// Dataset for a train.Trainer provides the data, one batch at a time. Flat datasets (no batching) can yield
// batches of one example.
//
// See package datasets for an in-memory implementation.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one batch of examples, or an error. It returns io.EOF when the dataset is exhausted.
	//
	// If using Loop.RunSteps for training having an infinite dataset stream is ok. But careful
	// not to use Loop.RunEpochs on a dataset configured to loop indefinitely.
	Yield() (batch []Example, err error)
}
