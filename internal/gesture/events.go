package gesture

import (
	"fmt"

	"speedmap-platform/internal/coverage"
)

// Phase names a touch callback
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseMove  Phase = "move"
	PhaseEnd   Phase = "end"
)

// Event is one platform touch callback: the phase plus every touch still
// down after it.
type Event struct {
	Phase   Phase         `json:"phase"`
	Touches []Touch       `json:"touches"`
	Size    coverage.Size `json:"container"`
}

// Handle feeds one event to the controller. Only end events produce a
// Release; the bool reports whether one was produced.
func (c *Controller) Handle(ev Event) (Release, bool, error) {
	switch ev.Phase {
	case PhaseStart:
		c.Start(ev.Touches, ev.Size)
	case PhaseMove:
		c.Move(ev.Touches, ev.Size)
	case PhaseEnd:
		return c.End(ev.Touches, ev.Size), true, nil
	default:
		return Release{}, false, fmt.Errorf("unknown touch phase %q", ev.Phase)
	}
	return Release{}, false, nil
}

// Replay runs a recorded trace and returns every completed tap
func (c *Controller) Replay(events []Event) ([]Release, error) {
	var taps []Release
	for i, ev := range events {
		rel, ended, err := c.Handle(ev)
		if err != nil {
			return taps, fmt.Errorf("event %d: %w", i, err)
		}
		if ended && rel.Tap {
			taps = append(taps, rel)
		}
	}
	return taps, nil
}
