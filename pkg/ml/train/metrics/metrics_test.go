// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lossBatch(loss float64, size int) *Batch {
	return &Batch{Loss: loss, Labels: make([][]float64, size), Predictions: make([][]float64, size)}
}

func TestLossMetrics(t *testing.T) {
	batchLoss := NewBatchLoss()
	assert.Equal(t, 3.0, batchLoss.Update(lossBatch(3, 1)))
	assert.Equal(t, 1.0, batchLoss.Update(lossBatch(1, 1)))
	assert.Equal(t, LossMetricType, batchLoss.MetricType())
	assert.Equal(t, "1.500", batchLoss.PrettyPrint(1.5))

	// Mean is weighted by batch size.
	meanLoss := NewMeanLoss()
	meanLoss.Update(lossBatch(3, 1))
	assert.InDelta(t, 1.5, meanLoss.Update(lossBatch(1, 3)), 1e-12)
	meanLoss.Reset()
	assert.Equal(t, 4.0, meanLoss.Update(lossBatch(4, 2)))

	// Moving average starts as a plain mean.
	ema := NewMovingAverageLoss(0.1)
	assert.Equal(t, 2.0, ema.Update(lossBatch(2, 1)))
	assert.Equal(t, 3.0, ema.Update(lossBatch(4, 1)))
	for range 100 {
		ema.Update(lossBatch(4, 1))
	}
	assert.InDelta(t, 4.0, ema.Update(lossBatch(4, 1)), 1e-3)
}

func TestSparseCategoricalAccuracy(t *testing.T) {
	batch := &Batch{
		Labels:      [][]float64{{0, 1, 0}, {1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
		Predictions: [][]float64{{0.1, 2, 0}, {3, 3, 1}, {1, 2, 0}, {5, 1, 0}},
	}
	assert.Equal(t, 0.5, SparseCategoricalAccuracy(batch))
	acc := NewSparseCategoricalAccuracy("Accuracy", "acc")
	assert.Equal(t, 0.5, acc.Update(batch))
	assert.Equal(t, "50.00%", acc.PrettyPrint(0.5))
	assert.Equal(t, AccuracyMetricType, acc.MetricType())
	assert.Equal(t, 0.0, SparseCategoricalAccuracy(&Batch{}))
}

func TestStreamingMedianMetric(t *testing.T) {
	median := NewMedianMetric("Median Loss", "med", LossMetricType, BatchLoss, nil).
		WithSampleSize(11).
		WithRandomSource(rand.New(rand.NewPCG(1, 2)))
	for ii := range 11 {
		median.Update(lossBatch(float64(ii), 1))
	}
	assert.Equal(t, 5.0, median.Update(lossBatch(5, 1)))

	// Beyond the sample size, values are sampled.
	for range 1000 {
		median.Update(lossBatch(100, 1))
	}
	assert.Equal(t, 100.0, median.Update(lossBatch(100, 1)))
	median.Reset()
	assert.Equal(t, 7.0, median.Update(lossBatch(7, 1)))
}
