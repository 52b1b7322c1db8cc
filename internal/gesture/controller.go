// Package gesture turns raw multi-touch input into zoom and pan updates
// for the measurement viewport.
package gesture

import (
	"math"

	"github.com/golang/geo/r2"

	"speedmap-platform/internal/coverage"
)

// State is the controller's current mode
type State int

const (
	Idle State = iota
	Panning
	Pinching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Panning:
		return "panning"
	case Pinching:
		return "pinching"
	default:
		return "unknown"
	}
}

// Touch is one active contact point in screen pixels
type Touch struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

func (t Touch) point() r2.Point {
	return r2.Point{X: t.X, Y: t.Y}
}

// Options bounds the viewport and defines what counts as a tap
type Options struct {
	MinZoom      float64
	MaxZoom      float64
	TapThreshold float64
}

// DefaultOptions allows zoom in [1,5] and treats under 10px of travel as a tap
func DefaultOptions() Options {
	return Options{MinZoom: coverage.MinZoom, MaxZoom: coverage.MaxZoom, TapThreshold: 10}
}

// Release describes how a touch sequence ended
type Release struct {
	// Tap is set when a single finger went down and up without moving
	// beyond the tap threshold.
	Tap bool     `json:"tap"`
	At  r2.Point `json:"at"`
	// Moved reports whether the sequence travelled far enough to be a pan
	Moved bool `json:"moved"`
}

// Controller is the pinch/pan state machine. Every update takes the
// current container size so clamping follows layout changes.
type Controller struct {
	opts  Options
	state State
	view  coverage.Viewport

	lastDist   float64
	lastCenter *r2.Point

	// per sequence, from first touch down to last touch up
	active     bool
	origin     r2.Point
	travel     float64
	maxTouches int
}

// NewController starts idle at zoom 1
func NewController(opts Options) *Controller {
	if opts.MaxZoom == 0 {
		opts = DefaultOptions()
	}
	return &Controller{opts: opts, view: coverage.IdentityViewport()}
}

// State returns the current mode
func (c *Controller) State() State {
	return c.state
}

// Viewport returns the current zoom and pan
func (c *Controller) Viewport() coverage.Viewport {
	return c.view
}

// SetViewport replaces the viewport, clamped to container
func (c *Controller) SetViewport(v coverage.Viewport, container coverage.Size) {
	c.view = v.Clamped(container, c.opts.MinZoom, c.opts.MaxZoom)
}

// Moved reports whether the current sequence has travelled past the tap threshold
func (c *Controller) Moved() bool {
	return c.travel >= c.opts.TapThreshold
}

// Start handles touches going down; touches is the full active set
func (c *Controller) Start(touches []Touch, container coverage.Size) {
	if len(touches) == 0 {
		return
	}
	if !c.active {
		c.active = true
		c.origin = touches[0].point()
		c.travel = 0
		c.maxTouches = 0
	}
	if len(touches) > c.maxTouches {
		c.maxTouches = len(touches)
	}

	switch {
	case len(touches) >= 2:
		dist, center := pair(touches)
		c.lastDist = dist
		c.lastCenter = &center
		c.state = Pinching
	case c.view.Zoom > 1:
		p := touches[0].point()
		c.lastCenter = &p
		c.state = Panning
	default:
		c.state = Idle
	}
}

// Move handles touches moving; touches is the full active set
func (c *Controller) Move(touches []Touch, container coverage.Size) {
	if len(touches) == 0 {
		return
	}
	if c.active && len(touches) == 1 {
		if d := touches[0].point().Sub(c.origin).Norm(); d > c.travel {
			c.travel = d
		}
	}

	switch {
	case len(touches) >= 2:
		dist, center := pair(touches)
		if c.lastDist > 0 {
			c.view.Zoom = clamp(c.view.Zoom*dist/c.lastDist, c.opts.MinZoom, c.opts.MaxZoom)
		}
		if c.lastCenter != nil && c.view.Zoom > 1 {
			c.view.Pan = c.view.Pan.Add(center.Sub(*c.lastCenter))
		}
		c.lastDist = dist
		c.lastCenter = &center
		c.state = Pinching
		// a pinch is never a tap
		c.travel = math.Max(c.travel, c.opts.TapThreshold)
		c.clampPan(container)

	case c.view.Zoom > 1 && c.lastCenter != nil:
		// still a possible tap: hold the pan so a tap hit-tests against
		// the viewport it started on. lastCenter stays put, so the held
		// distance is applied once the threshold is crossed.
		if !c.Moved() {
			c.state = Panning
			return
		}
		p := touches[0].point()
		c.view.Pan = c.view.Pan.Add(p.Sub(*c.lastCenter))
		c.lastCenter = &p
		c.state = Panning
		c.clampPan(container)
	}
}

// End handles touches lifting; remaining is the set still down.
// Repeated ends with the same remaining set are harmless.
func (c *Controller) End(remaining []Touch, container coverage.Size) Release {
	if len(remaining) < 2 {
		c.lastDist = 0
	}

	if len(remaining) > 0 {
		// idle, but the surviving finger can keep panning without a jump
		p := remaining[0].point()
		c.lastCenter = &p
		c.state = Idle
		return Release{Moved: c.Moved()}
	}

	c.lastCenter = nil
	c.state = Idle
	if !c.active {
		return Release{}
	}

	rel := Release{Moved: c.Moved()}
	if c.maxTouches == 1 && !rel.Moved {
		rel.Tap = true
		rel.At = c.origin
	}
	c.active = false
	c.travel = 0
	c.maxTouches = 0
	c.clampPan(container)
	return rel
}

// Reset returns to idle at zoom 1
func (c *Controller) Reset() {
	*c = Controller{opts: c.opts, view: coverage.IdentityViewport()}
}

func (c *Controller) clampPan(container coverage.Size) {
	c.view = c.view.Clamped(container, c.opts.MinZoom, c.opts.MaxZoom)
}

func pair(touches []Touch) (float64, r2.Point) {
	a, b := touches[0].point(), touches[1].point()
	return b.Sub(a).Norm(), a.Add(b).Mul(0.5)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
