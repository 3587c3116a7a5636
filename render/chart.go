package render

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"

	"github.com/fintechpatents/patentcls/inference"
)

// Chart dimensions.
const (
	chartWidth   = 8 * vg.Inch
	barHeight    = 0.6 * vg.Inch
	chartPadding = 1 * vg.Inch
)

var gridColor = color.Gray{Y: 225}

// Chart draws one horizontal bar per label, in input order from top to
// bottom, and returns the drawing as SVG. Bars use the label's color from
// colors, or inference.DefaultColor.
func Chart(conf []inference.LabelConfidence, colors map[string]color.RGBA) ([]byte, error) {
	if len(conf) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.X.Min, p.X.Max = 0, 100
	p.HideX()

	grid := plotter.NewGrid()
	grid.Vertical.Color = gridColor
	grid.Horizontal.Color = gridColor
	p.Add(grid)

	n := len(conf)
	names := make([]string, n)
	annotations := plotter.XYLabels{XYs: make(plotter.XYs, n), Labels: make([]string, n)}
	for i, c := range conf {
		// The first label is drawn at the top.
		pos := n - 1 - i
		names[pos] = c.Label

		bar, err := plotter.NewBarChart(plotter.Values{c.Percent}, barHeight*0.8)
		if err != nil {
			return nil, fmt.Errorf("bar %q: %w", c.Label, err)
		}
		bar.Horizontal = true
		bar.XMin = float64(pos)
		bar.Color = barColor(colors, c.Label)
		bar.LineStyle.Width = 0
		p.Add(bar)

		annotations.XYs[i] = plotter.XY{X: c.Percent, Y: float64(pos)}
		annotations.Labels[i] = fmt.Sprintf("%.2f%%", c.Percent)
	}

	labels, err := plotter.NewLabels(annotations)
	if err != nil {
		return nil, fmt.Errorf("annotations: %w", err)
	}
	labels.Offset = vg.Point{X: vg.Points(4), Y: -vg.Points(4)}
	p.Add(labels)
	p.NominalY(names...)

	canvas := vgsvg.New(chartWidth, barHeight*vg.Length(n)+chartPadding)
	p.Draw(draw.New(canvas))

	var buf bytes.Buffer
	if _, err := canvas.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("writing svg: %w", err)
	}
	return buf.Bytes(), nil
}

func barColor(colors map[string]color.RGBA, label string) color.RGBA {
	if c, ok := colors[label]; ok {
		return c
	}
	return inference.DefaultColor
}
