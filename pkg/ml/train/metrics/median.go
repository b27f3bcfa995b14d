// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math/rand/v2"

	"github.com/gomlx/scalargrad/pkg/support/xslices"
)

// StreamingMedianMetric implements a metric that keeps an approximate median of a metric from a streaming
// input, using reservoir sampling.
type StreamingMedianMetric struct {
	baseMetric
	maxNumSamples, samplesSeen int
	samples                    []float64
	rng                        *rand.Rand
}

// NewMedianMetric creates a streaming median metric from any BaseMetricFn function.
//
// If you are processing batches at a time (and not a batch of size 1), this will return a median of the
// batch means. This may be a reasonable approximation, but something to be mindful.
//
// `prettyPrintFn` can be left as nil, and a default will be used.
func NewMedianMetric(
	name, shortName, metricType string,
	metricFn BaseMetricFn,
	prettyPrintFn PrettyPrintFn,
) *StreamingMedianMetric {
	return &StreamingMedianMetric{
		baseMetric: baseMetric{
			name:       name,
			shortName:  shortName,
			metricType: metricType,
			metricFn:   metricFn,
			pPrintFn:   prettyPrintFn,
		},
		maxNumSamples: 10_001,
	}
}

// WithSampleSize configures the default number of random samples to keep to estimate the median.
func (m *StreamingMedianMetric) WithSampleSize(n int) *StreamingMedianMetric {
	m.maxNumSamples = n
	return m
}

// WithRandomSource sets the random number generator used to sample, e.g. context.Context.RandomSource.
// By default, a randomly seeded one is created.
func (m *StreamingMedianMetric) WithRandomSource(rng *rand.Rand) *StreamingMedianMetric {
	m.rng = rng
	return m
}

// Update implements Interface: it returns the (approximate) median of the batch values seen so far.
func (m *StreamingMedianMetric) Update(batch *Batch) float64 {
	x := m.metricFn(batch)
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	m.samplesSeen++
	switch {
	case len(m.samples) < m.maxNumSamples:
		// Simple case: we have space to simply store the new sampled x.
		m.samples = append(m.samples, x)
	case m.rng.Float64() < float64(m.maxNumSamples)/float64(m.samplesSeen):
		// We replace the new sampled x in a random position.
		m.samples[m.rng.IntN(m.maxNumSamples)] = x
	}
	return xslices.Median(m.samples)
}

// Reset implements Interface: all samples are dropped.
func (m *StreamingMedianMetric) Reset() {
	m.samples = nil
	m.samplesSeen = 0
}
