// Package live streams a widget's map commands and state to the browser
// over Datastar server-sent events.
package live

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-servicearea/internal/mapview"
)

// Command kinds.
const (
	CmdLayer       = "layer"
	CmdRemoveLayer = "remove-layer"
	CmdHighlight   = "highlight"
	CmdUnhighlight = "unhighlight"
	CmdCursor      = "cursor"
	CmdTooltip     = "tooltip"
	CmdGoTo        = "goto"
	CmdState       = "state"
)

// Command is one display update as sent to the browser.
type Command struct {
	Kind    string                     `json:"kind"`
	Layer   string                     `json:"layer,omitempty"`
	Data    *geojson.FeatureCollection `json:"data,omitempty"`
	Feature string                     `json:"feature,omitempty"`
	Cursor  string                     `json:"cursor,omitempty"`
	Tooltip *mapview.Tooltip           `json:"tooltip,omitempty"`
	Center  *orb.Point                 `json:"center,omitempty"`
	State   any                        `json:"state,omitempty"`
}

// Display is a mapview.Display that remembers the current picture and fans
// every command out to the connected streams.
type Display struct {
	*mapview.Recorder

	mu     sync.Mutex
	subs   map[chan Command]struct{}
	state  any
	closed bool
}

// NewDisplay returns an empty display.
func NewDisplay() *Display {
	return &Display{
		Recorder: mapview.NewRecorder(),
		subs:     make(map[chan Command]struct{}),
	}
}

func (d *Display) SetLayer(name string, fc *geojson.FeatureCollection) {
	d.Recorder.SetLayer(name, fc)
	d.publish(Command{Kind: CmdLayer, Layer: name, Data: fc})
}

func (d *Display) RemoveLayer(name string) {
	d.Recorder.RemoveLayer(name)
	d.publish(Command{Kind: CmdRemoveLayer, Layer: name})
}

func (d *Display) Highlight(layer, featureID string) func() {
	remove := d.Recorder.Highlight(layer, featureID)
	d.publish(Command{Kind: CmdHighlight, Layer: layer, Feature: featureID})
	var once sync.Once
	return func() {
		once.Do(func() {
			remove()
			d.publish(Command{Kind: CmdUnhighlight, Layer: layer, Feature: featureID})
		})
	}
}

func (d *Display) SetCursor(cursor string) {
	d.Recorder.SetCursor(cursor)
	d.publish(Command{Kind: CmdCursor, Cursor: cursor})
}

func (d *Display) ShowTooltip(t mapview.Tooltip) {
	d.Recorder.ShowTooltip(t)
	d.publish(Command{Kind: CmdTooltip, Tooltip: &t})
}

func (d *Display) GoTo(center orb.Point) {
	d.Recorder.GoTo(center)
	d.publish(Command{Kind: CmdGoTo, Center: &center})
}

// PublishState sends a widget state snapshot to the streams.
func (d *Display) PublishState(state any) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
	d.publish(Command{Kind: CmdState, State: state})
}

// Snapshot returns the commands that rebuild the current picture on a
// freshly connected stream.
func (d *Display) Snapshot() []Command {
	var out []Command
	for _, name := range []string{mapview.LayerZones, mapview.LayerFacility} {
		if fc := d.Layer(name); fc != nil {
			out = append(out, Command{Kind: CmdLayer, Layer: name, Data: fc})
		}
	}
	if c := d.Cursor(); c != "" {
		out = append(out, Command{Kind: CmdCursor, Cursor: c})
	}
	t := d.Tooltip()
	out = append(out, Command{Kind: CmdTooltip, Tooltip: &t})

	d.mu.Lock()
	state := d.state
	d.mu.Unlock()
	if state != nil {
		out = append(out, Command{Kind: CmdState, State: state})
	}
	return out
}

// Subscribe returns a channel of future commands. A stream that falls more
// than the buffer behind misses commands until it catches up.
func (d *Display) Subscribe() (<-chan Command, func()) {
	ch := make(chan Command, 64)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	d.subs[ch] = struct{}{}
	d.mu.Unlock()

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.subs[ch]; ok {
			delete(d.subs, ch)
			close(ch)
		}
	}
}

// Subscribers reports the number of connected streams.
func (d *Display) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Close ends every stream.
func (d *Display) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for ch := range d.subs {
		close(ch)
	}
	d.subs = nil
}

func (d *Display) publish(c Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

var _ mapview.Display = (*Display)(nil)
