package heatmap

import (
	"fmt"
	"math"
)

// LegendEntry is one swatch of the legend, fastest or most confident first
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend describes the colour key for a field
type Legend struct {
	Kind    Kind          `json:"kind"`
	Entries []LegendEntry `json:"entries"`
}

// NewLegend builds the three-entry key for kind over rng
func NewLegend(kind Kind, rng Range) Legend {
	if kind == KindConfidence {
		return Legend{Kind: kind, Entries: []LegendEntry{
			{Label: "High", Color: Hex(highConfidence)},
			{Label: "Medium", Color: Hex(mediumConfidence)},
			{Label: "Low", Color: Hex(lowConfidence)},
		}}
	}

	entry := func(v float64) LegendEntry {
		return LegendEntry{Label: fmt.Sprintf("%d Mbps", int(math.Round(v))), Color: Hex(SpeedColor(v, &rng))}
	}
	return Legend{Kind: kind, Entries: []LegendEntry{entry(rng.Max), entry(rng.Mid()), entry(rng.Min)}}
}

// ProgressText reports how much of the grid has been measured
func ProgressText(measured, total int) string {
	return fmt.Sprintf("%d of %d cells measured", measured, total)
}
