// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"os"
	"path"

	"github.com/gomlx/scalargrad/pkg/ml/context/checkpoints"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"k8s.io/klog/v2"
)

// PlotName is the name of the hooks registered by PNG.AttachToLoop.
const PlotName = "scalargrad.ui.plots"

var (
	// DefaultWidth of each plot in the PNG file.
	DefaultWidth = 8 * vg.Inch

	// DefaultHeight of each plot in the PNG file: there is one plot per metric type stacked vertically.
	DefaultHeight = 4 * vg.Inch
)

// PNG collects plot points and renders them into a PNG file, with one plot per metric type
// ("loss", "accuracy") and one line per metric.
//
// It implements Plotter.
type PNG struct {
	filePath      string
	width, height vg.Length
	points        []Point
	numSamples    int
	evalDatasets  []train.Dataset

	pointsWriter chan<- Point
	writerErr    <-chan error
}

// New creates a PNG plotter that renders to filePath.
func New(filePath string) *PNG {
	return &PNG{
		filePath: filePath,
		width:    DefaultWidth,
		height:   DefaultHeight,
	}
}

// WithSize sets the size of each individual plot.
func (p *PNG) WithSize(width, height vg.Length) *PNG {
	p.width, p.height = width, height
	return p
}

// WithEvalDatasets sets datasets to evaluate at each sample, with their points added to the plots.
func (p *PNG) WithEvalDatasets(datasets ...train.Dataset) *PNG {
	p.evalDatasets = datasets
	return p
}

// WithCheckpoint loads the points saved in the checkpoint directory (TrainingPlotFileName) by a previous
// training, and saves the new points there as well, so plots survive the training being restarted.
//
// A nil handler is a no-op.
func (p *PNG) WithCheckpoint(handler *checkpoints.Handler) (*PNG, error) {
	dir := handler.Dir()
	if dir == "" {
		return p, nil
	}
	filePath := path.Join(dir, TrainingPlotFileName)
	if _, err := os.Stat(filePath); err == nil {
		previous, err := LoadPoints(filePath)
		if err != nil {
			return nil, err
		}
		p.points = append(p.points, previous...)
		klog.V(1).Infof("Loaded %d plot points from %q", len(previous), filePath)
	}
	p.pointsWriter, p.writerErr = CreatePointsWriter(filePath)
	return p, nil
}

// AddPoint implements Plotter.
func (p *PNG) AddPoint(point Point) {
	p.points = append(p.points, point)
	if p.pointsWriter != nil {
		p.pointsWriter <- point
	}
}

// DynamicSampleDone implements Plotter.
func (p *PNG) DynamicSampleDone(incomplete bool) {
	p.numSamples++
	if incomplete {
		klog.Warningf("Plot sample #%d is incomplete: some metrics are NaN or infinite", p.numSamples)
	}
}

// Points returns the points collected so far.
func (p *PNG) Points() Points {
	return NewPoints(p.points)
}

// AttachToLoop samples the metrics every n steps of loop (and at its last step), and renders the PNG
// at the end of the loop.
func (p *PNG) AttachToLoop(loop *train.Loop, n int) {
	train.EveryNSteps(loop, n, PlotName, 0, func(loop *train.Loop, metrics []float64) error {
		return AddTrainAndEvalMetrics(p, loop, metrics, p.evalDatasets)
	})
	loop.OnEnd(PlotName, 0, func(_ *train.Loop, _ []float64) error {
		return p.Save()
	})
}

// Close the file where points are saved, if one was configured with WithCheckpoint.
func (p *PNG) Close() error {
	if p.pointsWriter == nil {
		return nil
	}
	close(p.pointsWriter)
	p.pointsWriter = nil
	return <-p.writerErr
}

// Save renders the PNG file with the points collected so far.
func (p *PNG) Save() error {
	points := p.Points()
	metricTypes := points.MetricsTypes()
	if len(metricTypes) == 0 {
		return errors.Errorf("no plot points to save to %q", p.filePath)
	}
	plots := make([][]*plot.Plot, len(metricTypes))
	for ii, metricType := range metricTypes {
		plt, err := p.plotMetricType(points, metricType)
		if err != nil {
			return err
		}
		plots[ii] = []*plot.Plot{plt}
	}

	img := vgimg.New(p.width, p.height*vg.Length(len(plots)))
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: len(plots), Cols: 1, PadY: vg.Millimeter}
	canvases := plot.Align(plots, tiles, dc)
	for ii := range plots {
		plots[ii][0].Draw(canvases[ii][0])
	}

	f, err := os.Create(p.filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create plot file %q", p.filePath)
	}
	if _, err = (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write plot to %q", p.filePath)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close plot file %q", p.filePath)
	}
	klog.V(1).Infof("Saved plot with %d samples to %q", p.numSamples, p.filePath)
	return nil
}

// plotMetricType creates a plot with one line per metric of the given type.
func (p *PNG) plotMetricType(points Points, metricType string) (*plot.Plot, error) {
	plt := plot.New()
	plt.Title.Text = metricType
	plt.X.Label.Text = "Global Step"
	plt.Y.Label.Text = metricType
	plt.Add(plotter.NewGrid())
	plt.Legend.Top = true

	var lineIdx int
	for _, name := range points.MetricsNames() {
		var xys plotter.XYs
		points.Map(func(pt *Point) {
			if pt.MetricName == name && pt.MetricType == metricType {
				xys = append(xys, plotter.XY{X: pt.Step, Y: pt.Value})
			}
		})
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to plot metric %q", name)
		}
		line.LineStyle.Color = plotutil.Color(lineIdx)
		line.LineStyle.Width = vg.Points(1.5)
		plt.Add(line)
		plt.Legend.Add(name, line)
		lineIdx++
	}
	return plt, nil
}
