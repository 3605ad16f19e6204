package hittest

import (
	"math"

	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
)

const (
	// Smoothing is the fraction of the remaining distance covered per frame.
	Smoothing = 0.1
	// SnapDistance is how close counts as arrived, in display units. It is
	// checked on each axis separately, not as a Euclidean distance: the
	// tooltip snaps once both |dx| and |dy| are below it.
	SnapDistance = 1.0
)

// Tooltip follows its target with exponential smoothing, one step per frame.
type Tooltip struct {
	loop    loop.Loop
	display mapview.Display

	visible     bool
	pos, target mapview.ScreenPoint
	text        string
	cancelFrame func()
}

// NewTooltip returns a hidden tooltip.
func NewTooltip(l loop.Loop, d mapview.Display) *Tooltip {
	return &Tooltip{loop: l, display: d}
}

// Show moves the tooltip toward p. A hidden tooltip appears at p directly.
func (t *Tooltip) Show(p mapview.ScreenPoint, text string) {
	if !t.visible {
		t.pos = p
	}
	t.target = p
	t.text = text
	t.visible = true
	t.stopFrames()
	t.step()
}

// Hide hides the tooltip and stops any animation.
func (t *Tooltip) Hide() {
	t.stopFrames()
	if !t.visible {
		return
	}
	t.visible = false
	t.render()
}

// Visible reports whether the tooltip is shown.
func (t *Tooltip) Visible() bool { return t.visible }

// Position returns the current, possibly mid-animation, position.
func (t *Tooltip) Position() mapview.ScreenPoint { return t.pos }

// Animating reports whether a frame is scheduled.
func (t *Tooltip) Animating() bool { return t.cancelFrame != nil }

// Close hides the tooltip and cancels any pending frame.
func (t *Tooltip) Close() {
	t.Hide()
}

func (t *Tooltip) step() {
	t.cancelFrame = nil
	t.pos.X += (t.target.X - t.pos.X) * Smoothing
	t.pos.Y += (t.target.Y - t.pos.Y) * Smoothing
	if math.Abs(t.target.X-t.pos.X) < SnapDistance && math.Abs(t.target.Y-t.pos.Y) < SnapDistance {
		t.pos = t.target
	} else {
		t.cancelFrame = t.loop.RequestFrame(t.step)
	}
	t.render()
}

func (t *Tooltip) stopFrames() {
	if t.cancelFrame != nil {
		t.cancelFrame()
		t.cancelFrame = nil
	}
}

func (t *Tooltip) render() {
	t.display.ShowTooltip(mapview.Tooltip{
		Visible:  t.visible,
		Position: mapview.ScreenPoint{X: math.Round(t.pos.X), Y: math.Round(t.pos.Y)},
		Text:     t.text,
	})
}
