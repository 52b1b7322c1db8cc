package heatmap

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// rampSteps is the palette resolution of the speed ramp
const rampSteps = 64

// fieldGrid adapts a Field to plotter.GridXYZ in grid-cell units
type fieldGrid struct {
	f     Field
	value func(float64) float64
}

func (g fieldGrid) Dims() (c, r int) { return g.f.Width(), g.f.Height() }
func (g fieldGrid) Z(c, r int) float64 {
	return g.value(g.f.Values[r][c])
}
func (g fieldGrid) X(c int) float64 { return g.f.Position(c, 0).X }
func (g fieldGrid) Y(r int) float64 { return g.f.Position(0, r).Y }

// colors implements palette.Palette over a fixed slice
type colors []color.Color

func (p colors) Colors() []color.Color { return p }

// speedPalette samples SpeedColor evenly across rng
func speedPalette(rng Range) palette.Palette {
	if rng.Span() < 1 {
		return colors{withAlpha(fastColor, Opacity)}
	}
	p := make(colors, rampSteps)
	for i := range p {
		v := rng.Min + rng.Span()*float64(i)/float64(rampSteps-1)
		p[i] = withAlpha(SpeedColor(v, &rng), Opacity)
	}
	return p
}

// PNGOptions sizes the rendered image
type PNGOptions struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

// RenderPNG draws the field as a heatmap with a marker at every sample
func RenderPNG(w io.Writer, f Field, opts PNGOptions) error {
	if opts.Width == 0 {
		opts.Width = 8 * vg.Inch
	}
	if opts.Height == 0 {
		opts.Height = opts.Width * vg.Length(f.Rows) / vg.Length(f.Cols)
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "column"
	p.Y.Label.Text = "row"
	// rows grow downwards like the floor plan
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	var hm *plotter.HeatMap
	if f.Kind == KindConfidence {
		levels := colors{
			withAlpha(lowConfidence, Opacity),
			withAlpha(mediumConfidence, Opacity),
			withAlpha(highConfidence, Opacity),
		}
		hm = plotter.NewHeatMap(fieldGrid{f: f, value: func(v float64) float64 {
			return float64(confidenceLevel(v))
		}}, levels)
		hm.Min, hm.Max = 0, 2
	} else {
		rng := f.Range
		hm = plotter.NewHeatMap(fieldGrid{f: f, value: func(v float64) float64 { return v }}, speedPalette(rng))
		hm.Min, hm.Max = rng.Min, rng.Max
		if rng.Span() < 1 {
			hm.Max = rng.Min + 1
		}
		hm.Underflow = withAlpha(slowColor, Opacity)
		hm.Overflow = withAlpha(fastColor, Opacity)
	}
	p.Add(hm)

	if len(f.Samples) > 0 {
		pts := make(plotter.XYs, len(f.Samples))
		for i, s := range f.Samples {
			pts[i] = plotter.XY{X: float64(s.GridX), Y: float64(s.GridY)}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("failed to build sample markers: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Color = color.White
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
	}

	wt, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to create png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}
