package gesture

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"

	"speedmap-platform/internal/coverage"
)

var container = coverage.Size{W: 300, H: 400}

func two(ax, ay, bx, by float64) []Touch {
	return []Touch{{ID: 1, X: ax, Y: ay}, {ID: 2, X: bx, Y: by}}
}

func one(x, y float64) []Touch {
	return []Touch{{ID: 1, X: x, Y: y}}
}

// pinchTo zooms from 1 to factor around the container centre
func pinchTo(c *Controller, factor float64) {
	c.Start(two(100, 200, 200, 200), container)
	half := 50 * factor
	c.Move(two(150-half, 200, 150+half, 200), container)
	c.End(nil, container)
}

func TestController_PinchDoublesZoom(t *testing.T) {
	c := NewController(DefaultOptions())
	c.Start(two(100, 200, 200, 200), container)
	if c.State() != Pinching {
		t.Fatalf("State = %v, want pinching", c.State())
	}

	c.Move(two(50, 200, 250, 200), container)

	v := c.Viewport()
	if math.Abs(v.Zoom-2) > 1e-9 {
		t.Errorf("Zoom = %v, want 2", v.Zoom)
	}
	if v.Pan != (r2.Point{}) {
		t.Errorf("Pan = %v, want (0,0) for a centred pinch", v.Pan)
	}
}

func TestController_ZoomClamps(t *testing.T) {
	tests := []struct {
		name   string
		factor float64
		want   float64
	}{
		{name: "zoom in past max", factor: 12, want: 5},
		{name: "zoom out below min", factor: 0.25, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(DefaultOptions())
			pinchTo(c, tt.factor)
			if got := c.Viewport().Zoom; math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Zoom = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestController_PanClampsToMargin(t *testing.T) {
	c := NewController(DefaultOptions())
	pinchTo(c, 3)

	c.Start(one(150, 200), container)
	if c.State() != Panning {
		t.Fatalf("State = %v, want panning", c.State())
	}
	c.Move(one(900, -800), container)

	want := r2.Point{X: 300, Y: -400}
	if got := c.Viewport().Pan; got != want {
		t.Errorf("Pan = %v, want clamp boundary %v", got, want)
	}
}

func TestController_ClampFollowsContainerSize(t *testing.T) {
	c := NewController(DefaultOptions())
	pinchTo(c, 3)
	c.Start(one(150, 200), container)
	c.Move(one(900, 200), container)

	narrow := coverage.Size{W: 100, H: 400}
	c.Move(one(901, 200), narrow)

	if got := c.Viewport().Pan.X; got != 100 {
		t.Errorf("Pan.X = %v, want 100 after the container shrank", got)
	}
}

func TestController_NoPanAtZoomOne(t *testing.T) {
	c := NewController(DefaultOptions())
	c.Start(one(10, 10), container)
	c.Move(one(120, 140), container)

	if c.State() != Idle {
		t.Errorf("State = %v, want idle", c.State())
	}
	if c.Viewport().Pan != (r2.Point{}) {
		t.Errorf("Pan = %v, want locked at (0,0)", c.Viewport().Pan)
	}
}

func TestController_TapDetection(t *testing.T) {
	tests := []struct {
		name    string
		moves   [][]Touch
		wantTap bool
	}{
		{name: "still finger", wantTap: true},
		{name: "jitter under threshold", moves: [][]Touch{one(103, 104), one(98, 99)}, wantTap: true},
		{name: "drag", moves: [][]Touch{one(105, 100), one(130, 100)}, wantTap: false},
		{name: "drag that returns home", moves: [][]Touch{one(140, 100), one(100, 100)}, wantTap: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(DefaultOptions())
			c.Start(one(100, 100), container)
			for _, m := range tt.moves {
				c.Move(m, container)
			}
			rel := c.End(nil, container)
			if rel.Tap != tt.wantTap {
				t.Errorf("Tap = %v, want %v", rel.Tap, tt.wantTap)
			}
			if rel.Tap && rel.At != (r2.Point{X: 100, Y: 100}) {
				t.Errorf("At = %v, want touch-down point", rel.At)
			}
			if rel.Moved == tt.wantTap {
				t.Errorf("Moved = %v, want %v", rel.Moved, !tt.wantTap)
			}
		})
	}
}

func TestController_TapWhileZoomedKeepsViewport(t *testing.T) {
	c := NewController(DefaultOptions())
	pinchTo(c, 3)
	before := c.Viewport()

	c.Start(one(150, 200), container)
	c.Move(one(152, 201), container)
	rel := c.End(nil, container)

	if !rel.Tap {
		t.Fatal("small wobble at zoom 3 should still be a tap")
	}
	if got := c.Viewport(); got != before {
		t.Errorf("Viewport = %+v after a tap, want unchanged %+v", got, before)
	}

	// once past the threshold the held distance is applied in full
	c.Start(one(150, 200), container)
	c.Move(one(155, 200), container)
	if got := c.Viewport().Pan; got != before.Pan {
		t.Errorf("Pan = %v under the threshold, want %v", got, before.Pan)
	}
	c.Move(one(170, 200), container)
	if got := c.Viewport().Pan.X - before.Pan.X; math.Abs(got-20) > 1e-9 {
		t.Errorf("pan delta = %v, want 20", got)
	}
	if rel := c.End(nil, container); rel.Tap {
		t.Error("drag reported as a tap")
	}
}

func TestController_PinchIsNotATap(t *testing.T) {
	c := NewController(DefaultOptions())
	c.Start(one(100, 200), container)
	c.Start(two(100, 200, 102, 200), container)
	c.Move(two(100, 200, 103, 200), container)
	c.End(one(100, 200), container)
	if rel := c.End(nil, container); rel.Tap {
		t.Error("two-finger sequence reported a tap")
	}
}

func TestController_DuplicateEnd(t *testing.T) {
	c := NewController(DefaultOptions())
	pinchTo(c, 2)
	before := c.Viewport()

	c.Start(one(100, 100), container)
	first := c.End(nil, container)
	second := c.End(nil, container)

	if !first.Tap {
		t.Error("first end should report the tap")
	}
	if second.Tap {
		t.Error("duplicate end reported a second tap")
	}
	if c.State() != Idle || c.Viewport() != before {
		t.Errorf("duplicate end changed state: %v %+v", c.State(), c.Viewport())
	}
}

func TestController_LiftOneFingerDoesNotJump(t *testing.T) {
	c := NewController(DefaultOptions())
	c.Start(two(100, 200, 200, 200), container)
	c.Move(two(50, 200, 250, 200), container)
	panBefore := c.Viewport().Pan

	c.End(one(250, 200), container)
	if c.State() != Idle {
		t.Errorf("State after lifting one finger = %v, want idle", c.State())
	}

	c.Move(one(260, 200), container)
	got := c.Viewport().Pan.Sub(panBefore)
	if math.Abs(got.X-10) > 1e-9 || got.Y != 0 {
		t.Errorf("pan delta = %v, want (10,0)", got)
	}

	// a new pinch starts fresh rather than scaling against the old distance
	zoom := c.Viewport().Zoom
	c.Start(two(240, 200, 280, 200), container)
	if math.Abs(c.Viewport().Zoom-zoom) > 1e-9 {
		t.Errorf("Zoom jumped to %v on pinch start", c.Viewport().Zoom)
	}
}

func TestController_Replay(t *testing.T) {
	c := NewController(DefaultOptions())
	events := []Event{
		{Phase: PhaseStart, Touches: one(40, 40), Size: container},
		{Phase: PhaseEnd, Size: container},
		{Phase: PhaseStart, Touches: two(100, 200, 200, 200), Size: container},
		{Phase: PhaseMove, Touches: two(50, 200, 250, 200), Size: container},
		{Phase: PhaseEnd, Size: container},
	}

	taps, err := c.Replay(events)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(taps) != 1 || taps[0].At != (r2.Point{X: 40, Y: 40}) {
		t.Errorf("taps = %+v, want one tap at (40,40)", taps)
	}
	if math.Abs(c.Viewport().Zoom-2) > 1e-9 {
		t.Errorf("Zoom = %v, want 2", c.Viewport().Zoom)
	}

	if _, err := c.Replay([]Event{{Phase: "hover"}}); err == nil {
		t.Error("Replay() accepted an unknown phase")
	}
}
