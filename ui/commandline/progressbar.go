// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// RefreshPeriod is the minimum time between terminal updates.
var RefreshPeriod = time.Millisecond * 200

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "scalargrad.ui.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// progressBar holds a progressbar being displayed.
type progressBar struct {
	out              io.Writer
	loop             *train.Loop
	numSteps         int
	lastStepReported int
	lastUpdate       time.Time
	bar              *progressbar.ProgressBar

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn
}

type progressBarUpdate struct {
	amount  int
	metrics []string
}

// AttachProgressBar creates a commandline progress bar and attaches it to the Loop, so that
// everytime Loop is run, it will display a progress bar with progression and a table with the
// training metrics.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func AttachProgressBar(loop *train.Loop, extraMetrics ...ExtraMetricFn) {
	attachProgressBarTo(loop, os.Stdout, extraMetrics...)
}

func attachProgressBarTo(loop *train.Loop, out io.Writer, extraMetrics ...ExtraMetricFn) {
	pBar := &progressBar{
		out:            out,
		loop:           loop,
		extraMetricFns: extraMetrics,
		termenv:        termenv.NewOutput(out),
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
	}
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	loop.OnStep(ProgressBarName, 0, pBar.onStep)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
}

func (pBar *progressBar) onStart(loop *train.Loop, _ train.Dataset) error {
	pBar.lastStepReported = loop.LoopStep
	pBar.lastUpdate = time.Time{}
	if loop.EndStep < 0 {
		pBar.numSteps = -1 // Unknown number of steps: the bar works as a spinner.
	} else {
		pBar.numSteps = loop.EndStep - loop.StartStep
	}
	pBar.bar = progressbar.NewOptions(pBar.numSteps,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar.out),
	)
	pBar.isFirstOutput = true
	pBar.updates = make(chan progressBarUpdate, 100) // Large buffer so things are not blocked.
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawUpdates()
	return nil
}

func (pBar *progressBar) onStep(loop *train.Loop, metrics []float64) error {
	amount := loop.LoopStep + 1 - pBar.lastStepReported // +1 because the current LoopStep is finished.
	if amount <= 0 {
		return nil
	}
	isLast := loop.EndStep >= 0 && loop.LoopStep+1 >= loop.EndStep
	if !isLast && time.Since(pBar.lastUpdate) < RefreshPeriod {
		return nil
	}
	pBar.lastUpdate = time.Now()

	// Create and enqueue an update to be asynchronously printed.
	trainMetrics := loop.Trainer.TrainMetrics()
	update := progressBarUpdate{
		amount:  amount,
		metrics: make([]string, 0, len(trainMetrics)+1),
	}
	if loop.EndStep >= 0 {
		update.metrics = append(update.metrics, fmt.Sprintf("%s of %s",
			humanize.Comma(int64(loop.LoopStep+1)), humanize.Comma(int64(loop.EndStep))))
	} else {
		update.metrics = append(update.metrics, humanize.Comma(int64(loop.LoopStep+1)))
	}
	for metricIdx, metricObj := range trainMetrics {
		update.metrics = append(update.metrics, metricObj.PrettyPrint(metrics[metricIdx]))
	}
	pBar.updates <- update
	pBar.lastStepReported = loop.LoopStep + 1
	return nil
}

// drawUpdates asynchronously draws the updates: this is handy if the training is faster than the terminal.
func (pBar *progressBar) drawUpdates() {
	defer pBar.asyncUpdatesDone.Done()
	for update := range pBar.updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		// Create the table to be printed.
		pBar.statsTable.Data(lgtable.NewStringData())
		pBar.statsTable.Row("Global Step", update.metrics[0])
		pBar.statsTable.Row("Median train step duration", FormatDuration(pBar.loop.MedianTrainStepDuration()))
		for metricIdx, metricObj := range pBar.loop.Trainer.TrainMetrics() {
			pBar.statsTable.Row(metricObj.Name(), update.metrics[1+metricIdx])
		}
		for _, extraMetric := range pBar.extraMetricFns {
			name, value := extraMetric()
			pBar.statsTable.Row(name, value)
		}

		// Clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := len(update.metrics) + 2 + 2 + len(pBar.extraMetricFns)
			pBar.termenv.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false

		// Print update.
		_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(pBar.out)
		pBar.termenv.ShowCursor()
	}
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ []float64) error {
	close(pBar.updates)
	pBar.asyncUpdatesDone.Wait()
	pBar.termenv.ShowCursor()
	_, _ = fmt.Fprintln(pBar.out)
	return nil
}
