// Package hittest turns a stream of pointer moves over a map into debounced
// hit tests against one layer, with a highlight and a trailing tooltip.
package hittest

import (
	"context"
	"time"

	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
	"github.com/joeblew999/plat-servicearea/internal/scope"
)

// LeaveGrace delays hiding after the pointer leaves the map, so crossing a
// gap between elements does not flicker.
const LeaveGrace = 100 * time.Millisecond

// Hit is a feature found under the pointer.
type Hit struct {
	FeatureID string
	Label     string
}

// Target answers hit tests for one layer. It runs off the loop and must
// honour ctx.
type Target interface {
	HitTest(ctx context.Context, ev mapview.Event) (Hit, bool, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, ev mapview.Event) (Hit, bool, error)

func (f TargetFunc) HitTest(ctx context.Context, ev mapview.Event) (Hit, bool, error) {
	return f(ctx, ev)
}

// Feedback is the live hit-test loop for one layer. Create with Enable and
// dispose with Close; all methods run on the loop.
type Feedback struct {
	loop    loop.Loop
	display mapview.Display
	layer   string
	target  Target
	tooltip *Tooltip
	subs    *scope.Scope

	// seq identifies the hit test whose result may still be applied.
	seq       uint64
	inFlight  bool
	cancelHit context.CancelFunc
	// queued is the latest position seen while a test was in flight.
	queued      *mapview.Event
	cancelLeave func()
	highlighted string
	unhighlight func()
	closed      bool
}

// Enable subscribes to pointer events on s and starts feedback for layer.
func Enable(l loop.Loop, s *mapview.Surface, layer string, target Target) *Feedback {
	f := &Feedback{
		loop:    l,
		display: s.Display(),
		layer:   layer,
		target:  target,
		tooltip: NewTooltip(l, s.Display()),
		subs:    scope.New(),
	}
	f.subs.Add(
		s.On(mapview.PointerMove, f.onMove),
		s.On(mapview.PointerLeave, f.onLeave),
	)
	return f
}

// Tooltip exposes the animated tooltip.
func (f *Feedback) Tooltip() *Tooltip { return f.tooltip }

// Pending reports whether a hit test is in flight.
func (f *Feedback) Pending() bool { return f.inFlight }

// onMove runs at most one hit test at a time. A move during a test marks it
// stale and waits; only the newest waiting position is tested next.
func (f *Feedback) onMove(ev *mapview.Event) {
	if f.closed {
		return
	}
	f.stopLeave()
	snapshot := *ev
	if f.inFlight {
		f.stopHit()
		f.queued = &snapshot
		return
	}
	f.start(snapshot)
}

func (f *Feedback) start(ev mapview.Event) {
	f.seq++
	seq := f.seq
	ctx, cancel := context.WithCancel(context.Background())
	f.cancelHit = cancel
	f.inFlight = true

	go func() {
		hit, ok, err := f.target.HitTest(ctx, ev)
		f.loop.Post(func() {
			cancel()
			if f.closed {
				return
			}
			f.inFlight = false
			f.cancelHit = nil
			if seq != f.seq {
				if next := f.queued; next != nil {
					f.queued = nil
					f.start(*next)
				}
				return
			}
			if err != nil {
				// A failed hit test shows nothing.
				ok = false
			}
			f.apply(hit, ok, ev.Screen)
		})
	}()
}

func (f *Feedback) onLeave(*mapview.Event) {
	if f.closed {
		return
	}
	f.stopHit()
	f.stopLeave()
	f.cancelLeave = f.loop.AfterFunc(LeaveGrace, func() {
		f.cancelLeave = nil
		if f.closed {
			return
		}
		f.clearHighlight()
		f.tooltip.Hide()
	})
}

func (f *Feedback) apply(hit Hit, ok bool, at mapview.ScreenPoint) {
	if !ok {
		f.clearHighlight()
		f.tooltip.Hide()
		return
	}
	if f.highlighted != hit.FeatureID || f.unhighlight == nil {
		f.clearHighlight()
		f.unhighlight = f.display.Highlight(f.layer, hit.FeatureID)
		f.highlighted = hit.FeatureID
	}
	f.tooltip.Show(at, hit.Label)
}

func (f *Feedback) clearHighlight() {
	if f.unhighlight != nil {
		f.unhighlight()
		f.unhighlight = nil
	}
	f.highlighted = ""
}

// stopHit makes any running test stale and drops the waiting position.
func (f *Feedback) stopHit() {
	if f.cancelHit != nil {
		f.cancelHit()
		f.cancelHit = nil
	}
	f.seq++
	f.queued = nil
}

func (f *Feedback) stopLeave() {
	if f.cancelLeave != nil {
		f.cancelLeave()
		f.cancelLeave = nil
	}
}

// Close releases the pointer subscriptions, drops any in-flight hit test,
// cancels the leave timer and animation frame, and hides the tooltip.
func (f *Feedback) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.subs.Close()
	f.stopHit()
	f.stopLeave()
	f.clearHighlight()
	f.tooltip.Close()
}
