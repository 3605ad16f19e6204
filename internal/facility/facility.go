// Package facility owns the single facility location and reconciles the
// ways a user can set it: search selection, free-text search, map click and
// marker drag.
package facility

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-servicearea/internal/apperr"
	"github.com/joeblew999/plat-servicearea/internal/geocode"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
)

// VisualState is the marker's presentation state.
type VisualState string

const (
	Normal  VisualState = "normal"
	Hovered VisualState = "hovered"
)

// Facility is an immutable snapshot. A drag keeps ID and moves Point; any
// other change creates a Facility with a new ID.
type Facility struct {
	ID    uint64      `json:"id"`
	Point orb.Point   `json:"point"`
	Label string      `json:"label"`
	State VisualState `json:"state"`
}

// Hit reports whether a pointer event lands within radiusPx screen pixels of
// the facility.
func (f *Facility) Hit(ev *mapview.Event, radiusPx float64) bool {
	if f == nil || ev == nil {
		return false
	}
	res := ev.Resolution
	if res <= 0 {
		res = 1
	}
	return planar.Distance(f.Point, ev.World) <= radiusPx*res
}

// ChangeKind says what happened to the facility.
type ChangeKind int

const (
	// Replaced: a new facility (or none) took over. Only this kind
	// invalidates a solve.
	Replaced ChangeKind = iota
	// Moved: the facility is being dragged.
	Moved
	// Hover: the visual state flipped.
	Hover
)

func (k ChangeKind) String() string {
	switch k {
	case Replaced:
		return "replaced"
	case Moved:
		return "moved"
	case Hover:
		return "hover"
	}
	return "unknown"
}

// Change is delivered to observers after every mutation.
type Change struct {
	Kind    ChangeKind
	Prev    *Facility
	Current *Facility
}

// Resolver is the search collaborator as seen by the controller. Callbacks
// run on the controller's loop.
type Resolver interface {
	Search(text string, done func(*geocode.Candidate, error))
	Reverse(p orb.Point, done func(*geocode.Candidate, error))
	CancelSearch()
}

// Controller is used from a single goroutine (the widget's loop).
type Controller struct {
	resolver Resolver
	// OnSearchError receives search failures other than superseded ones.
	OnSearchError func(error)
	// OnSearchMiss runs after a search that found no candidate.
	OnSearchMiss func(text string)
	// OnReverseError receives reverse geocode failures. The raw point is
	// placed regardless, so these are not user-facing.
	OnReverseError func(error)

	current  *Facility
	nextID   uint64
	dragging bool
	gen      uint64

	observers []observer
	nextObs   int
}

type observer struct {
	id int
	fn func(Change)
}

// New returns a controller. resolver may be nil; then clicks place the raw
// point and free-text search finds nothing.
func New(resolver Resolver) *Controller {
	return &Controller{resolver: resolver}
}

// SetResolver swaps the geocoding collaborator. A pending search is dropped.
func (c *Controller) SetResolver(r Resolver) {
	c.supersede()
	c.resolver = r
}

// Current returns the facility or nil.
func (c *Controller) Current() *Facility { return c.current }

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool { return c.dragging }

// Subscribe registers fn for every change. Observers run synchronously.
func (c *Controller) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.nextObs++
	id := c.nextObs
	c.observers = append(c.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// SetFromSearchResult replaces the facility with a selected search result.
func (c *Controller) SetFromSearchResult(p orb.Point, label string) {
	c.supersede()
	c.replace(p, label)
}

// SetFromMapClick places the facility at a clicked point, labelled by a
// reverse geocode. Without a match the raw point is kept with no label.
func (c *Controller) SetFromMapClick(p orb.Point) {
	c.supersede()
	c.resolvePoint(p)
}

// Search resolves free text and replaces the facility with the winning
// candidate. When nothing is found the facility is cleared.
func (c *Controller) Search(text string) {
	c.supersede()
	if c.resolver == nil {
		c.replaceWith(nil)
		return
	}
	gen := c.gen
	c.resolver.Search(text, func(cand *geocode.Candidate, err error) {
		if gen != c.gen || apperr.IsSuperseded(err) {
			return
		}
		if err != nil {
			if c.OnSearchError != nil {
				c.OnSearchError(err)
			}
			return
		}
		if cand == nil {
			c.replaceWith(nil)
			if c.OnSearchMiss != nil {
				c.OnSearchMiss(text)
			}
			return
		}
		c.replace(cand.Point, cand.Label)
	})
}

// BeginDrag starts moving the current facility. It reports false when there
// is nothing to drag.
func (c *Controller) BeginDrag() bool {
	if c.current == nil {
		return false
	}
	c.supersede()
	c.dragging = true
	return true
}

// UpdateDragPosition moves the facility without replacing it.
func (c *Controller) UpdateDragPosition(p orb.Point) {
	if !c.dragging || c.current == nil {
		return
	}
	next := *c.current
	next.Point = p
	c.emit(Moved, &next)
}

// EndDrag finishes the drag and relabels the facility at its new position.
func (c *Controller) EndDrag() {
	if !c.dragging {
		return
	}
	c.dragging = false
	if c.current == nil {
		return
	}
	c.resolvePoint(c.current.Point)
}

// SetHovered flips the marker's visual state.
func (c *Controller) SetHovered(hovered bool) {
	if c.current == nil {
		return
	}
	state := Normal
	if hovered {
		state = Hovered
	}
	if c.current.State == state {
		return
	}
	next := *c.current
	next.State = state
	c.emit(Hover, &next)
}

// Clear removes the facility.
func (c *Controller) Clear() {
	c.supersede()
	c.replaceWith(nil)
}

// supersede ends any drag and drops any pending search.
func (c *Controller) supersede() {
	c.dragging = false
	c.gen++
	if c.resolver != nil {
		c.resolver.CancelSearch()
	}
}

func (c *Controller) resolvePoint(p orb.Point) {
	if c.resolver == nil {
		c.replace(p, "")
		return
	}
	gen := c.gen
	c.resolver.Reverse(p, func(cand *geocode.Candidate, err error) {
		if gen != c.gen || apperr.IsSuperseded(err) {
			return
		}
		label := ""
		if err == nil && cand != nil {
			label = cand.Label
		} else if err != nil && c.OnReverseError != nil {
			c.OnReverseError(err)
		}
		c.replace(p, label)
	})
}

func (c *Controller) replace(p orb.Point, label string) {
	c.nextID++
	c.replaceWith(&Facility{ID: c.nextID, Point: p, Label: label, State: Normal})
}

func (c *Controller) replaceWith(f *Facility) {
	c.dragging = false
	if f == nil && c.current == nil {
		return
	}
	c.emit(Replaced, f)
}

func (c *Controller) emit(kind ChangeKind, next *Facility) {
	ch := Change{Kind: kind, Prev: c.current, Current: next}
	c.current = next
	for _, o := range append([]observer(nil), c.observers...) {
		o.fn(ch)
	}
}
