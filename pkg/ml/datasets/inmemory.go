// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets holds the data loading tools for training: reading word lists, character vocabularies,
// makemore-style context windows, one-hot encoding, and the InMemoryDataset (a train.Dataset) that batches
// and shuffles examples held in memory.
package datasets

import (
	"encoding/gob"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InMemoryDataset is a train.Dataset with all its examples held in memory.
//
// It supports batching, shuffling (with and without replacement) and can be duplicated (only one copy
// of the underlying data is used).
//
// Finally, it supports serialization and deserialization, to accelerate loading of the data -- in case
// generating the original dataset is expensive.
type InMemoryDataset struct {
	// name of the dataset.
	name string

	// examples are shared among copies, and never changed.
	examples []train.Example

	// muSampling serializes the sampling information, all the member variables below.
	muSampling sync.Mutex

	// batchSize to yield. If set to 0 yields only one example at a time.
	batchSize int

	// dropIncompleteBatch, when there are not enough remaining examples in the epoch.
	dropIncompleteBatch bool

	// next record to be sampled. If shuffle is given, this is an index in shuffle. If randomWithReplacement,
	// this is a count only.
	//
	// If it is set to -1, it means the dataset has been exhausted already.
	next int

	// randomWithReplacement indicates that one should simply take a random entry every time.
	randomWithReplacement bool

	// shuffle holds the current shuffle if Shuffle was selected.
	shuffle []int

	// infinite sets whether to loop indefinitely.
	infinite bool

	// randomNumberGenerator used when random sampling, allows for deterministic random datasets.
	randomNumberGenerator *rand.Rand

	// takeN is the maximum number of batches to take, before forcing an end of epoch.
	// If <= 0, take as many as available (or continuously if InMemoryDataset.infinite=true)
	takeN int
}

var _ train.Dataset = (*InMemoryDataset)(nil)

func newClockRand() *rand.Rand {
	seed := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed>>1))
}

// InMemory creates a dataset with the given examples. The slice is not copied, and shouldn't be changed
// afterwards.
//
// Returns a InMemoryDataset, that is initially not shuffled and not batched. You can configure how you want to
// use it with the other configuration methods.
func InMemory(name string, examples []train.Example) (*InMemoryDataset, error) {
	if len(examples) == 0 {
		return nil, errors.Errorf("InMemory(%q): no examples given", name)
	}
	return &InMemoryDataset{
		name:                  name,
		examples:              examples,
		randomNumberGenerator: newClockRand(),
	}, nil
}

// InMemoryFromDataset reads ds until io.EOF, and returns an InMemoryDataset with all its examples.
// ds is reset before reading.
func InMemoryFromDataset(ds train.Dataset) (*InMemoryDataset, error) {
	ds.Reset()
	var examples []train.Example
	for {
		batch, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "InMemoryFromDataset(%q): failed reading", ds.Name())
		}
		examples = append(examples, batch...)
	}
	return InMemory(ds.Name(), examples)
}

// NumExamples held by the dataset.
func (mds *InMemoryDataset) NumExamples() int {
	return len(mds.examples)
}

// Examples returns the underlying examples. They shouldn't be changed.
func (mds *InMemoryDataset) Examples() []train.Example {
	return mds.examples
}

// Copy returns a copy of the dataset. It uses the same underlying data -- so very little memory is used.
//
// The copy comes configured by default with sequential reading (not random sampling), non-looping, and reset.
func (mds *InMemoryDataset) Copy() *InMemoryDataset {
	return &InMemoryDataset{
		name:                  mds.name,
		examples:              mds.examples,
		takeN:                 mds.takeN,
		randomNumberGenerator: newClockRand(),
	}
}

// Split returns two copies of the dataset (see Copy), the first with the first fraction of the examples and
// the second with the remainder. E.g.: Split(0.9) for a 90%/10% train/test split.
//
// Shuffle the examples beforehand (e.g. with ShuffleExamples) if they are sorted in any way.
func (mds *InMemoryDataset) Split(fraction float64) (first, second *InMemoryDataset, err error) {
	n := int(fraction * float64(len(mds.examples)))
	if n <= 0 || n >= len(mds.examples) {
		return nil, nil, errors.Errorf("InMemoryDataset.Split(%g) of %d examples leaves one part empty",
			fraction, len(mds.examples))
	}
	first, second = mds.Copy(), mds.Copy()
	first.examples = mds.examples[:n]
	second.examples = mds.examples[n:]
	return
}

// ShuffleExamples shuffles the examples in place using rng, e.g. context.Context.RandomSource.
func ShuffleExamples(rng *rand.Rand, examples []train.Example) {
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
}

// Name implements train.Dataset.
func (mds *InMemoryDataset) Name() string {
	return mds.name
}

// SetName sets the name of the dataset, and returns the updated dataset.
func (mds *InMemoryDataset) SetName(name string) *InMemoryDataset {
	mds.name = name
	return mds
}

// Reset implements train.Dataset.
func (mds *InMemoryDataset) Reset() {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()

	mds.next = 0
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
}

// indicesNextYield retrieve the indices for the next Yield call.
func (mds *InMemoryDataset) indicesNextYield() (indices []int) {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	if mds.next == -1 {
		return // dataset already exhausted.
	}
	n := mds.batchSize
	if n <= 0 {
		n = 1
	}
	numExamples := len(mds.examples)
	indices = make([]int, 0, n)
	for mds.next < numExamples && len(indices) < n {
		if len(mds.shuffle) > 0 {
			indices = append(indices, mds.shuffle[mds.next])
		} else if mds.randomWithReplacement {
			indices = append(indices, mds.randomNumberGenerator.IntN(numExamples))
		} else {
			indices = append(indices, mds.next)
		}
		mds.next++
	}
	if len(indices) < n && mds.dropIncompleteBatch {
		// Drop the incomplete batch.
		indices = nil
	}
	if mds.next >= numExamples {
		mds.next = -1
	}
	if mds.takeN > 0 && mds.next >= mds.takeN*n {
		mds.next = -1
	}
	return
}

// Yield implements train.Dataset. It returns io.EOF at the end of the epoch, unless configured to loop
// with Infinite(true).
func (mds *InMemoryDataset) Yield() (batch []train.Example, err error) {
	indices := mds.indicesNextYield()
	if len(indices) == 0 {
		if !mds.infinite {
			// Dataset is already exhausted.
			return nil, io.EOF
		}

		// If looping infinitely, automatically Reset and pull new indices.
		mds.Reset()
		indices = mds.indicesNextYield()
		if len(indices) == 0 {
			klog.Errorf("InMemoryDataset configured for infinite loop, but Reset failed to generate new examples!?")
			return nil, io.EOF
		}
	}
	batch = make([]train.Example, len(indices))
	for ii, idx := range indices {
		batch[ii] = mds.examples[idx]
	}
	return batch, nil
}

// RandomWithReplacement configures the InMemoryDataset to return random elements with replacement.
// If this is configured, Shuffle is canceled.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) RandomWithReplacement() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.randomWithReplacement = true
	mds.shuffle = nil
	return mds
}

// Shuffle configures the InMemoryDataset to shuffle the order of the data. It returns random elements
// without replacement. If this is configured, RandomWithReplacement is canceled.
//
// At each call to Reset() it is reshuffled. It happens automatically if dataset is configured to loop.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Shuffle() *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.randomWithReplacement = false
	mds.shuffleLocked()
	return mds
}

// shuffleLocked shuffles dataset yield order. It assumes muSampling is locked.
func (mds *InMemoryDataset) shuffleLocked() {
	numExamples := len(mds.examples)
	if mds.shuffle == nil {
		mds.shuffle = make([]int, numExamples)
	}
	for ii := range numExamples {
		newPos := mds.randomNumberGenerator.IntN(ii + 1)
		if newPos == ii {
			mds.shuffle[ii] = ii
		} else {
			// Swap position with the new example.
			mds.shuffle[newPos], mds.shuffle[ii] = ii, mds.shuffle[newPos]
		}
	}
}

// BatchSize configures the InMemoryDataset to return batches of the given size. If dropIncompleteBatch is set
// to true, it will simply drop examples if there are not enough to fill a batch -- this can only happen on the
// last batch of an epoch. Otherwise, it will return a partially filled batch.
//
// If n is set to 0, it reverts back to yielding one example at a time.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) BatchSize(n int, dropIncompleteBatch bool) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.batchSize = n
	mds.dropIncompleteBatch = dropIncompleteBatch
	return mds
}

// WithRand sets the random number generator (RNG) for shuffling or random sampling. This allows for repeatable
// deterministic random sampling, e.g. using context.Context.RandomSource. The default is to use an RNG
// initialized with the current nanosecond time.
//
// If dataset is configured with Shuffle, this re-shuffles the dataset immediately.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) WithRand(rng *rand.Rand) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.randomNumberGenerator = rng
	if mds.shuffle != nil {
		mds.shuffleLocked()
	}
	return mds
}

// Infinite sets whether the dataset should loop indefinitely. The default is infinite = false, which
// causes the dataset to going through the data only once before returning io.EOF.
//
// It returns the modified InMemoryDataset, so calls can be cascaded if one wants.
func (mds *InMemoryDataset) Infinite(infinite bool) *InMemoryDataset {
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.infinite = infinite
	return mds
}

// TakeN configures dataset to only take N batches before returning io.EOF.
// If set to 0 or -1, it takes as many as there is data.
// If configured, it automatically disables InMemoryDataset.Infinite
func (mds *InMemoryDataset) TakeN(n int) *InMemoryDataset {
	if n > 0 {
		mds.Infinite(false)
	}
	mds.muSampling.Lock()
	defer mds.muSampling.Unlock()
	mds.takeN = n
	return mds
}

// GobSerialize in-memory content to the encoder.
//
// Only the name and the examples are serialized, not the sampling configuration.
func (mds *InMemoryDataset) GobSerialize(encoder *gob.Encoder) (err error) {
	enc := func(data any) {
		if err != nil {
			return
		}
		err = encoder.Encode(data)
		if err != nil {
			err = errors.Wrapf(err, "failed to serialize InMemoryDataset")
		}
	}
	enc(mds.name)
	enc(int32(len(mds.examples)))
	for _, example := range mds.examples {
		enc(example)
	}
	return
}

// GobDeserializeInMemory dataset from the decoder.
//
// No sampling configuration is recovered, and the InMemoryDataset created is sequential (no random sampling)
// that reads through only one epoch. The random number generator is also newly initialized (see
// InMemoryDataset.WithRand).
func GobDeserializeInMemory(decoder *gob.Decoder) (mds *InMemoryDataset, err error) {
	dec := func(data any) {
		if err != nil {
			return
		}
		err = decoder.Decode(data)
		if err != nil {
			err = errors.Wrapf(err, "failed to deserialize InMemoryDataset")
		}
	}
	mds = &InMemoryDataset{randomNumberGenerator: newClockRand()}
	var numExamples int32
	dec(&mds.name)
	dec(&numExamples)
	if err != nil {
		return nil, err
	}
	mds.examples = make([]train.Example, numExamples)
	for ii := range mds.examples {
		dec(&mds.examples[ii])
	}
	if err != nil {
		return nil, err
	}
	return mds, nil
}

// takeDataset implements a train.Dataset that only yields take batches.
type takeDataset struct {
	ds          train.Dataset
	count, take int
}

// Take returns a wrapper to ds, a train.Dataset that only yields n batches.
func Take(ds train.Dataset, n int) train.Dataset {
	return &takeDataset{
		ds:   ds,
		take: n,
	}
}

// Name implements train.Dataset. It returns the dataset name.
func (ds *takeDataset) Name() string {
	return ds.ds.Name() + " [Take]"
}

// Reset implements train.Dataset.
func (ds *takeDataset) Reset() {
	ds.ds.Reset()
	ds.count = 0
}

// Yield implements train.Dataset.
func (ds *takeDataset) Yield() (batch []train.Example, err error) {
	if ds.count >= ds.take {
		return nil, io.EOF
	}
	ds.count++
	return ds.ds.Yield()
}
