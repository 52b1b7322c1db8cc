package coverage

import "math"

// SuggestNextCell picks the unmeasured cell farthest from every sample.
// With no in-grid samples it picks the cell nearest the grid centre.
// Ties keep the first cell in row-major order. Samples outside grid are
// ignored. Returns false when every cell is measured.
func SuggestNextCell(grid GridSpec, samples []Sample) (Cell, bool) {
	grid = grid.Normalized()

	measured := make(map[Cell]struct{}, len(samples))
	inside := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !grid.Contains(s.Cell()) {
			continue
		}
		if _, dup := measured[s.Cell()]; dup {
			continue
		}
		measured[s.Cell()] = struct{}{}
		inside = append(inside, s)
	}
	if len(measured) >= grid.CellCount() {
		return Cell{}, false
	}

	if len(inside) == 0 {
		return nearestToCenter(grid), true
	}

	index := NewSampleIndex(inside)
	best := Cell{}
	bestDist := math.Inf(-1)
	for _, c := range grid.Cells() {
		if _, ok := measured[c]; ok {
			continue
		}
		if d := index.Nearest(c.Point()); d > bestDist {
			best, bestDist = c, d
		}
	}
	return best, true
}

// nearestToCenter seeds an empty survey in the middle of the plan
func nearestToCenter(grid GridSpec) Cell {
	center := grid.Center()
	best := Cell{}
	bestDist := math.Inf(1)
	for _, c := range grid.Cells() {
		if d := c.Point().Sub(center).Norm(); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
