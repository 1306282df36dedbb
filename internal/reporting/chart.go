package reporting

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
)

// ErrNoChartData is returned by WriteChart when no record got a transcription.
var ErrNoChartData = errors.New("no transcribed records to chart")

var barWidth = vg.Points(24)

// WriteChart draws a 2x2 PNG: mean WER by speed, mean cost savings by speed,
// WER against original duration, and mean processing time by speed.
func WriteChart(path string, records []evaluationengine.TestRecord) error {
	var transcribed []SpeedSummary
	for _, s := range Summarize(records) {
		if s.OK+s.Undefined > 0 {
			transcribed = append(transcribed, s)
		}
	}
	if len(transcribed) == 0 {
		return ErrNoChartData
	}

	var scored []SpeedSummary
	for _, s := range transcribed {
		if s.Scored() {
			scored = append(scored, s)
		}
	}

	werPlot, err := barPlot("Mean WER by Speed", "WER", scored, func(s SpeedSummary) float64 { return s.MeanWER }, 0)
	if err != nil {
		return err
	}
	savingsPlot, err := barPlot("Mean Cost Savings by Speed", "Savings (%)", transcribed, func(s SpeedSummary) float64 { return s.MeanCostSavings }, 1)
	if err != nil {
		return err
	}
	scatterPlot, err := werDurationPlot(records)
	if err != nil {
		return err
	}
	timePlot, err := barPlot("Mean Processing Time by Speed", "Seconds", transcribed, func(s SpeedSummary) float64 { return s.MeanProcessingTime }, 2)
	if err != nil {
		return err
	}

	plots := [][]*plot.Plot{
		{werPlot, savingsPlot},
		{scatterPlot, timePlot},
	}

	img := vgimg.New(vg.Points(1200), vg.Points(900))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Points(20),
		PadY:      vg.Points(20),
		PadTop:    vg.Points(10),
		PadBottom: vg.Points(10),
		PadLeft:   vg.Points(10),
		PadRight:  vg.Points(10),
	}
	canvases := plot.Align(plots, tiles, dc)
	for row := range plots {
		for col, p := range plots[row] {
			p.Draw(canvases[row][col])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return f.Close()
}

func barPlot(title, yLabel string, summaries []SpeedSummary, value func(SpeedSummary) float64, colorIdx int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Speed"
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	if len(summaries) == 0 {
		return p, nil
	}

	values := make(plotter.Values, len(summaries))
	names := make([]string, len(summaries))
	for i, s := range summaries {
		values[i] = value(s)
		names[i] = speedLabel(s.Speed)
	}
	bars, err := plotter.NewBarChart(values, barWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to build %q bars: %w", title, err)
	}
	bars.Color = plotutil.Color(colorIdx)
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(names...)
	return p, nil
}

func werDurationPlot(records []evaluationengine.TestRecord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "WER vs Original Duration"
	p.X.Label.Text = "Original duration (s)"
	p.Y.Label.Text = "WER"
	p.Add(plotter.NewGrid())

	var points plotter.XYs
	for _, r := range records {
		if r.Scored() {
			points = append(points, plotter.XY{X: r.OriginalDuration, Y: *r.WER})
		}
	}
	if len(points) == 0 {
		return p, nil
	}

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return nil, fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Color = plotutil.Color(3)
	p.Add(scatter)
	return p, nil
}
