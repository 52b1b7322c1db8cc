package heatmap

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"speedmap-platform/internal/coverage"
)

// ChannelStats describes the measured values of one channel
type ChannelStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// Summary is a coverage report for one project
type Summary struct {
	Measured        int          `json:"measured"`
	TotalCells      int          `json:"total_cells"`
	Stale           int          `json:"stale"`
	CoveragePercent float64      `json:"coverage_percent"`
	Progress        string       `json:"progress"`
	Download        ChannelStats `json:"download"`
	Upload          ChannelStats `json:"upload"`
	MeanConfidence  float64      `json:"mean_confidence"`
	WellCovered     int          `json:"well_covered_cells"`
	HeatmapReady    bool         `json:"heatmap_ready"`
}

// Summarize reports coverage of grid by the estimator's samples, judging
// confidence at every cell.
func Summarize(grid coverage.GridSpec, est *coverage.Estimator, stale int) Summary {
	grid = grid.Normalized()
	samples := est.Samples()

	s := Summary{
		Measured:     len(samples),
		TotalCells:   grid.CellCount(),
		Stale:        stale,
		Progress:     ProgressText(len(samples), grid.CellCount()),
		Download:     channelStats(samples, coverage.ChannelDownload),
		Upload:       channelStats(samples, coverage.ChannelUpload),
		HeatmapReady: len(samples) >= MinSamples,
	}
	s.CoveragePercent = 100 * float64(s.Measured) / float64(s.TotalCells)

	conf := make([]float64, 0, grid.CellCount())
	for _, c := range grid.Cells() {
		v := est.Confidence(c.Point())
		conf = append(conf, v)
		if confidenceLevel(v) == 2 {
			s.WellCovered++
		}
	}
	s.MeanConfidence = stat.Mean(conf, nil)
	return s
}

func channelStats(samples []coverage.Sample, ch coverage.Channel) ChannelStats {
	if len(samples) == 0 {
		return ChannelStats{}
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value(ch)
	}
	sort.Float64s(values)

	cs := ChannelStats{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   stat.Mean(values, nil),
		Median: stat.Quantile(0.5, stat.Empirical, values, nil),
	}
	if len(values) > 1 {
		cs.StdDev = stat.StdDev(values, nil)
	}
	return cs
}
