// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics holds a library of metrics and defines the Interface they implement, used by train.Trainer
// to report the progress of training and evaluation.
package metrics

import (
	"fmt"
	"math"

	"github.com/gomlx/scalargrad/pkg/ml/train/losses"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
)

// Batch holds the results of one training or evaluation step, that metrics are computed from.
type Batch struct {
	// Loss is the mean loss of the batch.
	Loss float64

	// Labels and Predictions of each example of the batch: Predictions are the values of the model outputs.
	Labels, Predictions [][]float64
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int { return len(b.Labels) }

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "Moving-Average-Accuracy" and "Batch-Accuracy" would both have the same
	// "accuracy" metric type, and for instance, can be displayed on the same plot, sharing
	// the Y-axis.
	MetricType() string

	// Update the metric with the results of one batch, and return the current value of the metric.
	Update(batch *Batch) float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters when starting a new evaluation.
	Reset()
}

const (
	// LossMetricType is the type of loss metrics.
	// Used to aggregate metrics of the same  type in the same plot.
	LossMetricType = "loss"

	// AccuracyMetricType is the type of accuracy metrics.
	// Used to aggregate metrics of the same  type in the same plot.
	AccuracyMetricType = "accuracy"
)

// BaseMetricFn computes a metric from one batch, without any state. It should return the mean for the batch.
type BaseMetricFn func(batch *Batch) float64

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// baseMetric implements a stateless metric.Interface.
type baseMetric struct {
	name, shortName, metricType string
	metricFn                    BaseMetricFn
	pPrintFn                    PrettyPrintFn // if nil will display default.
}

func (m *baseMetric) Name() string       { return m.name }
func (m *baseMetric) ShortName() string  { return m.shortName }
func (m *baseMetric) MetricType() string { return m.metricType }

// Update implements Interface, it simply returns the metric of the batch.
func (m *baseMetric) Update(batch *Batch) float64 {
	return m.metricFn(batch)
}

// PrettyPrint implements Interface.
func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn != nil {
		return m.pPrintFn(value)
	}
	return fmt.Sprintf("%.3f", value)
}

// Reset implements Interface. It's a no-op for stateless metrics.
func (m *baseMetric) Reset() {}

// NewBaseMetric creates a stateless metric from any BaseMetricFn function.
// pPrintFn can be left as nil, and a default will be used.
func NewBaseMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) Interface {
	return &baseMetric{name: name, shortName: shortName, metricType: metricType, metricFn: metricFn, pPrintFn: pPrintFn}
}

// MeanMetric implements a metric that keeps the mean of a metric over all the examples seen since the
// last Reset.
type MeanMetric struct {
	baseMetric
	mean, count float64
}

// NewMeanMetric creates a metric from any BaseMetricFn function, that keeps the mean of the metric over all
// the examples seen (each batch is weighted by its size).
// pPrintFn can be left as nil, and a default will be used.
func NewMeanMetric(name, shortName, metricType string, metricFn BaseMetricFn, pPrintFn PrettyPrintFn) *MeanMetric {
	return &MeanMetric{baseMetric: baseMetric{
		name: name, shortName: shortName, metricType: metricType, metricFn: metricFn, pPrintFn: pPrintFn}}
}

// Update implements Interface.
func (m *MeanMetric) Update(batch *Batch) float64 {
	value := m.metricFn(batch)
	weight := float64(max(batch.Size(), 1))
	m.count += weight
	m.mean += (value - m.mean) * weight / m.count
	return m.mean
}

// Reset implements Interface.
func (m *MeanMetric) Reset() {
	m.mean, m.count = 0, 0
}

// movingAverageMetric implements a metric that keeps the mean of a metric.
//
// It behaves just like a MeanMetric, but each new batch has weight of newExampleWeight, and
// the stored weight is capped at (1-newExampleWeight).
type movingAverageMetric struct {
	MeanMetric
	newExampleWeight float64
}

// NewExponentialMovingAverageMetric creates a metric from any BaseMetricFn function. It takes new batches with
// the given weight (newExampleWeight), and decays the rest to 1-newExampleWeight.
//
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
// pPrintFn can be left as nil, and a default will be used.
//
// This doesn't have a set prior, it will start being a normal average until there are enough terms, and it becomes
// an exponential moving average.
func NewExponentialMovingAverageMetric(
	name, shortName, metricType string,
	metricFn BaseMetricFn,
	pPrintFn PrettyPrintFn,
	newExampleWeight float64,
) Interface {
	return &movingAverageMetric{MeanMetric: MeanMetric{baseMetric: baseMetric{
		name: name, shortName: shortName, metricType: metricType,
		metricFn: metricFn, pPrintFn: pPrintFn}}, newExampleWeight: newExampleWeight}
}

// Update implements Interface.
func (m *movingAverageMetric) Update(batch *Batch) float64 {
	value := m.metricFn(batch)
	m.count++
	weight := math.Max(m.newExampleWeight, 1/m.count)
	m.mean = m.mean*(1-weight) + value*weight
	return m.mean
}

// BatchLoss returns the loss of the batch.
func BatchLoss(batch *Batch) float64 {
	return batch.Loss
}

// NewBatchLoss returns a metric that reports the loss of the last batch.
func NewBatchLoss() Interface {
	return NewBaseMetric("Batch Loss", "batch", LossMetricType, BatchLoss, nil)
}

// NewMeanLoss returns a metric that reports the mean loss, typically used for evaluation.
func NewMeanLoss() *MeanMetric {
	return NewMeanMetric("Mean Loss", "loss", LossMetricType, BatchLoss, nil)
}

// NewMovingAverageLoss returns a metric that reports the exponential moving average of the loss.
func NewMovingAverageLoss(newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric("Moving Average Loss", "~loss", LossMetricType, BatchLoss, nil, newExampleWeight)
}

// SparseCategoricalAccuracy returns the fraction of the examples where the largest prediction (logit) is the true
// class of the one-hot encoded labels (see losses.TruthIndex).
// For ties on the largest prediction, the first one is taken.
func SparseCategoricalAccuracy(batch *Batch) float64 {
	if batch.Size() == 0 {
		return 0
	}
	var correct int
	for ii, labels := range batch.Labels {
		if xslices.ArgMax(batch.Predictions[ii]) == losses.TruthIndex(labels) {
			correct++
		}
	}
	return float64(correct) / float64(batch.Size())
}

func accuracyPPrint(value float64) string {
	return fmt.Sprintf("%.2f%%", 100*value)
}

// NewSparseCategoricalAccuracy returns a new categorical accuracy metric, see SparseCategoricalAccuracy.
func NewSparseCategoricalAccuracy(name, shortName string) *MeanMetric {
	return NewMeanMetric(name, shortName, AccuracyMetricType, SparseCategoricalAccuracy, accuracyPPrint)
}

// NewMovingAverageSparseCategoricalAccuracy returns a new categorical accuracy metric averaged with an
// exponential moving average, see SparseCategoricalAccuracy.
func NewMovingAverageSparseCategoricalAccuracy(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(name, shortName, AccuracyMetricType,
		SparseCategoricalAccuracy, accuracyPPrint, newExampleWeight)
}
