// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plots collects training plot points (train metrics and evaluations on datasets) along a training
// loop, saves them along the checkpoints and renders them as PNG files.
package plots

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"slices"
	"sort"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/ml/train/metrics"
	"github.com/gomlx/scalargrad/pkg/support/fsutil"
	"github.com/gomlx/scalargrad/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TrainingPlotFileName is the default file name within a checkpoint directory to store
// plot points collected during training.
const TrainingPlotFileName = "training_plot_points.json"

// Point represents a training plot point. It is used to save/load plots.
type Point struct {
	// MetricName of this point.
	MetricName string

	// Short name
	Short string

	// MetricType typically will be "loss", "accuracy".
	// It's used in plotting to aggregate similar metric types in the same plot.
	MetricType string

	// Step is the global step this metric was measured.
	// Usually, this is an int value, stored as a float64.
	Step float64

	// Value is the metric captured.
	Value float64
}

// Plotter receives the plot points, see PNG.
type Plotter interface {
	// AddPoint to be drawn. One metric at a time.
	AddPoint(point Point)

	// DynamicSampleDone is called after all the data points recorded for this sample (evaluation at a time step).
	// The value `incomplete` is set to true if any of the evaluations are NaN or infinite.
	DynamicSampleDone(incomplete bool)
}

// AddTrainAndEvalMetrics adds to the plotter the train metrics (except the noisy "Batch Loss") of the
// current step, and the evaluation metrics on the given datasets.
//
// It evaluates on the datasets sequentially, with loop.Trainer.Eval.
func AddTrainAndEvalMetrics(plotter Plotter, loop *train.Loop, trainMetrics []float64, evalDatasets []train.Dataset) error {
	step := float64(loop.Trainer.GlobalStep())
	var incomplete bool
	for ii, desc := range loop.Trainer.TrainMetrics() {
		if desc.Name() == metrics.NewBatchLoss().Name() || ii >= len(trainMetrics) {
			// The batch loss fluctuates a lot, the moving average loss is plotted instead.
			continue
		}
		value := trainMetrics[ii]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			incomplete = true
			continue
		}
		plotter.AddPoint(Point{
			MetricName: "Train: " + desc.Name(),
			Short:      fmt.Sprintf("T/%s", desc.ShortName()),
			MetricType: desc.MetricType(),
			Step:       step,
			Value:      value})
	}

	for _, ds := range evalDatasets {
		evalMetrics, err := loop.Trainer.Eval(ds)
		if err != nil {
			return err
		}
		dsShort := ds.Name()
		if len(dsShort) > 3 {
			dsShort = dsShort[:3]
		}
		for ii, desc := range loop.Trainer.EvalMetrics() {
			value := evalMetrics[ii]
			if math.IsNaN(value) || math.IsInf(value, 0) {
				incomplete = true
				continue
			}
			plotter.AddPoint(Point{
				MetricName: fmt.Sprintf("%s on %s", desc.Name(), ds.Name()),
				Short:      fmt.Sprintf("%s(%s)", desc.ShortName(), dsShort),
				MetricType: desc.MetricType(),
				Step:       step,
				Value:      value})
		}
	}

	plotter.DynamicSampleDone(incomplete)
	return nil
}

// LoadPointsFromCheckpoint loads all plot points saved during training in file TrainingPlotFileName
// in a checkpoint directory.
func LoadPointsFromCheckpoint(checkpointDir string) ([]Point, error) {
	checkpointDir, err := fsutil.ReplaceTildeInDir(checkpointDir)
	if err != nil {
		return nil, err
	}
	return LoadPoints(path.Join(checkpointDir, TrainingPlotFileName))
}

// LoadPoints parses all plot points saved in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plot points file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding plot points file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}

// CreatePointsWriter creates a channel to write Point to the given file, appending to it if it exists.
// It creates an errReport channel to report an error (or nil) back at the very end.
// If any error occurs, it stops writing, and will report the error back once pointWriter is closed.
func CreatePointsWriter(filePath string) (pointWriter chan<- Point, errReport <-chan error) {
	pointChan := make(chan Point, 100)
	pointWriter = pointChan
	errChan := make(chan error, 1)
	errReport = errChan
	go func() {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			err = errors.Wrapf(err, "failed to open plot points file %q for append", filePath)
			klog.Errorf("Error: %v", err)
		}
		enc := json.NewEncoder(f)
		for point := range pointChan {
			if err != nil {
				continue // Drain the channel.
			}
			if err = enc.Encode(point); err != nil {
				err = errors.Wrapf(err, "failed to encode point %v", point)
				klog.Errorf("Error: %v", err)
			}
		}
		if f != nil {
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
		}
		errChan <- err
	}()
	return
}

// Points is a collection of Point objects organized by their Step value.
type Points map[float64][]Point

// NewPoints create a Points object from a collection of individual Point.
func NewPoints(rawPoints []Point) (points Points) {
	points = make(Points)
	for _, p := range rawPoints {
		points[p.Step] = append(points[p.Step], p)
	}
	return points
}

// Map executes the given function on all individual points, in Step order.
// Note that if `p.Step` changes, it is not re-indexed.
func (points Points) Map(fn func(p *Point)) {
	for _, step := range xslices.SortedKeys(points) {
		stepPoints := points[step]
		for ii := range stepPoints {
			fn(&stepPoints[ii])
		}
	}
}

// Filter only keeps those points for which fn returns true, removing the other ones.
func (points Points) Filter(fn func(p Point) bool) {
	for _, step := range xslices.SortedKeys(points) {
		newStepPoints := slices.DeleteFunc(points[step], func(p Point) bool { return !fn(p) })
		if len(newStepPoints) == 0 {
			delete(points, step)
		} else {
			points[step] = newStepPoints
		}
	}
}

// Extract converts the Points structure back to a list of individual points, sorted by Point.Step.
func (points Points) Extract() (rawPoints []Point) {
	points.Map(func(p *Point) {
		rawPoints = append(rawPoints, *p)
	})
	return
}

// MetricsNames return the list of metrics names in the whole collection, sorted alphabetically by their type and
// then by their name.
func (points Points) MetricsNames() []string {
	nameToType := make(map[string]string)
	points.Map(func(p *Point) {
		nameToType[p.MetricName] = p.MetricType
	})
	names := xslices.SortedKeys(nameToType)
	sort.SliceStable(names, func(i, j int) bool {
		return nameToType[names[i]] < nameToType[names[j]]
	})
	return names
}

// MetricsTypes returns the sorted list of metric types in the collection.
func (points Points) MetricsTypes() []string {
	types := make(map[string]bool)
	points.Map(func(p *Point) {
		types[p.MetricType] = true
	})
	return xslices.SortedKeys(types)
}

// TableForMetrics returns a table with the first column being the Step followed
// by the columns given by the metrics names.
// If metrics is empty, it will include all metrics in the table.
func (points Points) TableForMetrics(metrics ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	if len(metrics) == 0 {
		metrics = points.MetricsNames()
	}
	table.Headers(append([]string{"Step"}, metrics...)...)
	for _, step := range xslices.SortedKeys(points) {
		row := make([]string, 1+len(metrics))
		row[0] = fmt.Sprintf("%.0f", step)
		for _, pt := range points[step] {
			if idx := slices.Index(metrics, pt.MetricName); idx != -1 {
				row[idx+1] = fmt.Sprintf("%f", pt.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

func (points Points) String() string {
	return points.TableForMetrics()
}
