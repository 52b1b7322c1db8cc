package coverage

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Channel selects which measured value a query reads
type Channel string

const (
	ChannelDownload Channel = "download"
	ChannelUpload   Channel = "upload"
)

// ParseChannel accepts download or upload
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelDownload, ChannelUpload:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q, expected download or upload", s)
}

// Sample is one speed measurement anchored to a grid cell
type Sample struct {
	ID       string  `json:"id"`
	GridX    int     `json:"gridX"`
	GridY    int     `json:"gridY"`
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

// Cell returns the cell the sample is anchored to
func (s Sample) Cell() Cell {
	return Cell{Col: s.GridX, Row: s.GridY}
}

// Value reads one channel
func (s Sample) Value(ch Channel) float64 {
	if ch == ChannelUpload {
		return s.Upload
	}
	return s.Download
}

// MeasurementSet holds at most one sample per cell.
// Version increments on every mutation so derived results can be cached.
type MeasurementSet struct {
	samples []Sample
	version uint64
	newID   func() string
}

// NewMeasurementSet loads existing samples. A later sample for an
// already occupied cell replaces the earlier one.
func NewMeasurementSet(samples ...Sample) *MeasurementSet {
	m := &MeasurementSet{newID: uuid.NewString}
	for _, s := range samples {
		m.insert(s)
	}
	return m
}

// WithIDFunc overrides the identifier source, used by tests
func (m *MeasurementSet) WithIDFunc(fn func() string) *MeasurementSet {
	m.newID = fn
	return m
}

// Upsert replaces whatever sample occupies the cell with a new one
func (m *MeasurementSet) Upsert(c Cell, download, upload float64) Sample {
	s := Sample{
		ID:       m.newID(),
		GridX:    c.Col,
		GridY:    c.Row,
		Download: nonNegative(download),
		Upload:   nonNegative(upload),
	}
	m.insert(s)
	return s
}

// Insert stores an existing sample, replacing any sample at its cell
func (m *MeasurementSet) Insert(s Sample) {
	if s.ID == "" {
		s.ID = m.newID()
	}
	s.Download = nonNegative(s.Download)
	s.Upload = nonNegative(s.Upload)
	m.insert(s)
}

func (m *MeasurementSet) insert(s Sample) {
	m.remove(s.Cell())
	m.samples = append(m.samples, s)
	m.version++
}

// Remove deletes the sample at c, reporting whether one existed
func (m *MeasurementSet) Remove(c Cell) bool {
	if m.remove(c) {
		m.version++
		return true
	}
	return false
}

func (m *MeasurementSet) remove(c Cell) bool {
	for i, s := range m.samples {
		if s.GridX == c.Col && s.GridY == c.Row {
			m.samples = append(m.samples[:i], m.samples[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the set
func (m *MeasurementSet) Clear() {
	if len(m.samples) == 0 {
		return
	}
	m.samples = nil
	m.version++
}

// Find returns the sample at c
func (m *MeasurementSet) Find(c Cell) (Sample, bool) {
	for _, s := range m.samples {
		if s.GridX == c.Col && s.GridY == c.Row {
			return s, true
		}
	}
	return Sample{}, false
}

// Samples returns a copy in insertion order
func (m *MeasurementSet) Samples() []Sample {
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// Within returns the samples whose cell lies inside grid
func (m *MeasurementSet) Within(grid GridSpec) []Sample {
	out := make([]Sample, 0, len(m.samples))
	for _, s := range m.samples {
		if grid.Contains(s.Cell()) {
			out = append(out, s)
		}
	}
	return out
}

func (m *MeasurementSet) Len() int {
	return len(m.samples)
}

func (m *MeasurementSet) Version() uint64 {
	return m.version
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
