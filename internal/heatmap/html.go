package heatmap

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTMLOptions configures the interactive chart page
type HTMLOptions struct {
	Title      string
	AssetsHost string
}

// RenderHTML writes a standalone echarts page for the field. Category
// axes index sub-cells; the y axis is listed bottom-up so row 0 is on top.
func RenderHTML(w io.Writer, f Field, o HTMLOptions) error {
	width, height := f.Width(), f.Height()

	xs := make([]string, width)
	for i := range xs {
		xs[i] = strconv.FormatFloat(f.Position(i, 0).X, 'f', 2, 64)
	}
	ys := make([]string, height)
	for j := range ys {
		ys[height-1-j] = strconv.FormatFloat(f.Position(0, j).Y, 'f', 2, 64)
	}

	data := make([]opts.HeatMapData, 0, width*height)
	for j, row := range f.Values {
		for i, v := range row {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, height - 1 - j, round2(v)}})
		}
	}

	var inRange []string
	if f.Kind == KindConfidence {
		inRange = []string{Hex(lowConfidence), Hex(mediumConfidence), Hex(highConfidence)}
	} else {
		rng := f.Range
		inRange = []string{Hex(SpeedColor(rng.Min, &rng)), Hex(SpeedColor(rng.Mid(), &rng)), Hex(SpeedColor(rng.Max, &rng))}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.Title, Width: "900px", Height: "720px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    o.Title,
			Subtitle: fmt.Sprintf("%s grid=%dx%d samples=%d", f.Kind, f.Cols, f.Rows, len(f.Samples)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "column"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "row", Data: ys}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(f.Range.Min),
			Max:        float32(f.Range.Max),
			InRange:    &opts.VisualMapInRange{Color: inRange},
		}),
	)
	hm.SetXAxis(xs).AddSeries(string(f.Kind), data)

	if err := hm.Render(w); err != nil {
		return fmt.Errorf("failed to render heatmap page: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
