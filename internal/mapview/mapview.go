// Package mapview is the boundary between the widget and whatever draws the
// map. The widget receives pointer events through a Surface and sends
// commands (layers, highlights, cursor, tooltip) to a Display. It never reads
// rendering state back.
package mapview

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Layer names used by the widget.
const (
	LayerFacility = "facility"
	LayerZones    = "zones"
)

// ScreenPoint is a position in display pixels.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EventKind names a map pointer event.
type EventKind string

const (
	PointerMove  EventKind = "pointer-move"
	PointerDown  EventKind = "pointer-down"
	PointerUp    EventKind = "pointer-up"
	PointerLeave EventKind = "pointer-leave"
	Click        EventKind = "click"
	DragStart    EventKind = "drag-start"
	Drag         EventKind = "drag"
	DragEnd      EventKind = "drag-end"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case PointerMove, PointerDown, PointerUp, PointerLeave, Click, DragStart, Drag, DragEnd:
		return true
	}
	return false
}

// Event is one pointer event with both screen and world coordinates.
type Event struct {
	Kind   EventKind
	Screen ScreenPoint
	World  orb.Point
	// Resolution is world units per screen pixel at the time of the event.
	Resolution float64

	stopped bool
}

// StopPropagation keeps the map's default handling (panning) from running.
func (e *Event) StopPropagation() { e.stopped = true }

// Stopped reports whether a handler called StopPropagation.
func (e *Event) Stopped() bool { return e.stopped }

// Handler receives events of one kind.
type Handler func(ev *Event)

// Tooltip is the full tooltip state sent to the display.
type Tooltip struct {
	Visible  bool        `json:"visible"`
	Position ScreenPoint `json:"position"`
	Text     string      `json:"text"`
}

// Display accepts drawing commands.
type Display interface {
	SetLayer(name string, fc *geojson.FeatureCollection)
	RemoveLayer(name string)
	// Highlight marks one feature of a layer; remove undoes it.
	Highlight(layer, featureID string) (remove func())
	SetCursor(cursor string)
	ShowTooltip(t Tooltip)
	GoTo(center orb.Point)
}

// Surface is one attached map: the display plus its event subscriptions.
// Dispatch and the handlers run on the owning widget's loop.
type Surface struct {
	display Display

	mu       sync.Mutex
	nextID   int
	handlers map[EventKind][]subscription
}

type subscription struct {
	id int
	fn Handler
}

// NewSurface wraps a display.
func NewSurface(d Display) *Surface {
	return &Surface{display: d, handlers: make(map[EventKind][]subscription)}
}

// Display returns the command side of the surface.
func (s *Surface) Display() Display { return s.display }

// On subscribes h to events of kind. The returned function unsubscribes and
// is safe to call more than once.
func (s *Surface) On(kind EventKind, h Handler) (remove func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers[kind] = append(s.handlers[kind], subscription{id: id, fn: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.handlers[kind]
		for i, sub := range subs {
			if sub.id == id {
				s.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers ev to its subscribers in subscription order and reports
// whether propagation was stopped.
func (s *Surface) Dispatch(ev *Event) bool {
	s.mu.Lock()
	subs := append([]subscription(nil), s.handlers[ev.Kind]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
	return ev.Stopped()
}

// Subscribers reports how many handlers are registered for kind.
func (s *Surface) Subscribers(kind EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers[kind])
}
