package hittest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
)

const wait = 2 * time.Second

// gatedTarget blocks each hit test until the test releases it by X position.
type gatedTarget struct {
	gates map[float64]chan hitReply

	mu     sync.Mutex
	calls  []float64
	active int
	peak   int
}

type hitReply struct {
	hit Hit
	ok  bool
}

func newGatedTarget(xs ...float64) *gatedTarget {
	g := &gatedTarget{gates: make(map[float64]chan hitReply)}
	for _, x := range xs {
		g.gates[x] = make(chan hitReply, 1)
	}
	return g
}

func (g *gatedTarget) HitTest(ctx context.Context, ev mapview.Event) (Hit, bool, error) {
	g.mu.Lock()
	g.calls = append(g.calls, ev.Screen.X)
	g.active++
	g.peak = max(g.peak, g.active)
	g.mu.Unlock()

	r := <-g.gates[ev.Screen.X]

	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	return r.hit, r.ok, nil
}

func (g *gatedTarget) stats() ([]float64, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]float64(nil), g.calls...), g.peak
}

func setup(target Target) (*loop.Manual, *mapview.Recorder, *mapview.Surface, *Feedback) {
	l := loop.NewManual()
	rec := mapview.NewRecorder()
	s := mapview.NewSurface(rec)
	return l, rec, s, Enable(l, s, mapview.LayerZones, target)
}

func move(s *mapview.Surface, x, y float64) {
	s.Dispatch(&mapview.Event{Kind: mapview.PointerMove, Screen: mapview.ScreenPoint{X: x, Y: y}})
}

func TestStaleHitTestDiscarded(t *testing.T) {
	target := newGatedTarget(10, 20)
	l, rec, s, f := setup(target)
	defer f.Close()

	move(s, 10, 0)
	move(s, 20, 0)

	// The newer test misses; the older one hits but resolves last.
	target.gates[20] <- hitReply{ok: false}
	target.gates[10] <- hitReply{hit: Hit{FeatureID: "1", Label: "stale"}, ok: true}
	l.RunNext(wait)
	l.RunNext(wait)

	if rec.Tooltip().Visible || rec.Tooltip().Text == "stale" {
		t.Fatalf("stale hit displayed: %+v", rec.Tooltip())
	}
	if rec.HighlightCount() != 0 {
		t.Fatal("stale hit highlighted")
	}
}

func TestOneHitTestInFlight(t *testing.T) {
	target := newGatedTarget(10, 20, 30)
	l, rec, s, f := setup(target)
	defer f.Close()

	move(s, 10, 0)
	move(s, 20, 0)
	move(s, 30, 0)
	if !f.Pending() {
		t.Fatal("no hit test in flight")
	}

	// The first test resolves stale; only the newest waiting position runs next.
	target.gates[10] <- hitReply{hit: Hit{FeatureID: "1", Label: "stale"}, ok: true}
	l.RunNext(wait)
	target.gates[30] <- hitReply{hit: Hit{FeatureID: "3", Label: "latest"}, ok: true}
	l.RunNext(wait)

	if tip := rec.Tooltip(); !tip.Visible || tip.Text != "latest" {
		t.Fatalf("tooltip=%+v, want latest", tip)
	}
	calls, peak := target.stats()
	if len(calls) != 2 || calls[0] != 10 || calls[1] != 30 {
		t.Fatalf("calls=%v, want [10 30]", calls)
	}
	if peak != 1 {
		t.Fatalf("peak concurrent hit tests=%d, want 1", peak)
	}
	if f.Pending() {
		t.Fatal("hit test still pending")
	}
}

func TestHitShowsTooltipAndHighlight(t *testing.T) {
	target := TargetFunc(func(ctx context.Context, ev mapview.Event) (Hit, bool, error) {
		return Hit{FeatureID: "z1", Label: "0 - 10 min"}, true, nil
	})
	l, rec, s, f := setup(target)

	move(s, 50, 40)
	l.RunNext(wait)

	tip := rec.Tooltip()
	if !tip.Visible || tip.Text != "0 - 10 min" || tip.Position != (mapview.ScreenPoint{X: 50, Y: 40}) {
		t.Fatalf("tooltip=%+v", tip)
	}
	if !rec.Highlighted(mapview.LayerZones, "z1") {
		t.Fatal("feature not highlighted")
	}

	f.Close()
	if rec.Tooltip().Visible || rec.HighlightCount() != 0 {
		t.Fatal("Close left tooltip or highlight behind")
	}
	if s.Subscribers(mapview.PointerMove) != 0 || s.Subscribers(mapview.PointerLeave) != 0 {
		t.Fatal("Close left subscriptions behind")
	}
}

func TestLeaveHidesAfterGrace(t *testing.T) {
	target := TargetFunc(func(ctx context.Context, ev mapview.Event) (Hit, bool, error) {
		return Hit{FeatureID: "z1", Label: "x"}, true, nil
	})
	l, rec, s, f := setup(target)
	defer f.Close()

	move(s, 1, 1)
	l.RunNext(wait)
	s.Dispatch(&mapview.Event{Kind: mapview.PointerLeave})

	l.Advance(LeaveGrace / 2)
	if !rec.Tooltip().Visible {
		t.Fatal("hidden before grace delay")
	}
	l.Advance(LeaveGrace)
	if rec.Tooltip().Visible || rec.HighlightCount() != 0 {
		t.Fatal("not hidden after grace delay")
	}
}

func TestMoveCancelsLeave(t *testing.T) {
	target := newGatedTarget(1, 2)
	l, rec, s, f := setup(target)
	defer f.Close()

	target.gates[1] <- hitReply{hit: Hit{FeatureID: "a", Label: "a"}, ok: true}
	move(s, 1, 1)
	l.RunNext(wait)
	s.Dispatch(&mapview.Event{Kind: mapview.PointerLeave})
	move(s, 2, 1)
	l.Advance(LeaveGrace * 2)
	if !rec.Tooltip().Visible {
		t.Fatal("leave timer fired after pointer came back")
	}
	target.gates[2] <- hitReply{}
}

func TestTooltipSmoothing(t *testing.T) {
	l := loop.NewManual()
	rec := mapview.NewRecorder()
	tip := NewTooltip(l, rec)

	tip.Show(mapview.ScreenPoint{X: 0, Y: 0}, "a")
	if tip.Animating() {
		t.Fatal("first show should not animate")
	}

	tip.Show(mapview.ScreenPoint{X: 100, Y: 0}, "a")
	// Show takes the first step immediately.
	if got := tip.Position().X; got != 10 {
		t.Fatalf("x=%v, want 10 after one step", got)
	}
	l.Frame()
	if got := tip.Position().X; got != 19 {
		t.Fatalf("x=%v, want 19 after two steps", got)
	}

	frames := 0
	for tip.Animating() && frames < 200 {
		l.Frame()
		frames++
	}
	if tip.Animating() {
		t.Fatal("animation did not converge")
	}
	if tip.Position().X != 100 {
		t.Fatalf("x=%v, want exact snap to 100", tip.Position().X)
	}
	if l.PendingFrames() != 0 {
		t.Fatalf("pending frames=%d after convergence", l.PendingFrames())
	}
}

func TestTooltipSnapsPerAxis(t *testing.T) {
	l := loop.NewManual()
	tip := NewTooltip(l, mapview.NewRecorder())

	tip.Show(mapview.ScreenPoint{X: 0, Y: 0}, "a")
	// After one step the gap is under 1 on each axis but about 1.34 overall.
	target := mapview.ScreenPoint{X: 1.05, Y: 1.05}
	tip.Show(target, "a")
	if tip.Animating() || tip.Position() != target {
		t.Fatalf("position=%+v animating=%v, want snapped to %+v", tip.Position(), tip.Animating(), target)
	}
}

func TestTooltipHideCancelsFrame(t *testing.T) {
	l := loop.NewManual()
	tip := NewTooltip(l, mapview.NewRecorder())
	tip.Show(mapview.ScreenPoint{}, "a")
	tip.Show(mapview.ScreenPoint{X: 500, Y: 500}, "a")
	tip.Show(mapview.ScreenPoint{X: 400, Y: 500}, "a")
	if l.PendingFrames() != 1 {
		t.Fatalf("pending frames=%d, want 1", l.PendingFrames())
	}
	tip.Hide()
	if l.PendingFrames() != 0 || tip.Animating() {
		t.Fatal("hide left a frame scheduled")
	}
	if l.Frame() != 0 {
		t.Fatal("cancelled frame ran")
	}
}
