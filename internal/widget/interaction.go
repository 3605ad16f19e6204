package widget

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-servicearea/internal/facility"
	"github.com/joeblew999/plat-servicearea/internal/hittest"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
	"github.com/joeblew999/plat-servicearea/internal/orchestrator"
	"github.com/joeblew999/plat-servicearea/internal/scope"
	"github.com/joeblew999/plat-servicearea/internal/zones"
)

// Cursor values sent to the display.
const (
	CursorDefault   = "default"
	CursorPointer   = "pointer"
	CursorCrosshair = "crosshair"
)

// AttachMap connects the widget to a map surface. A previously attached
// surface is detached first.
func (w *Widget) AttachMap(s *mapview.Surface) {
	if w.closed || s == nil {
		return
	}
	if w.surface != nil {
		w.releaseMap()
	}
	w.surface = s
	w.mapConfigured = true
	w.cursor = ""
	if w.pickMode {
		w.subscribePick()
	}
	w.bindFacility(w.facility.Current())
	w.renderFacility(true)
	w.renderZones()
	w.notify()
}

// DetachMap handles loss of the map context: facility and zones are cleared
// and the widget returns to ready with no message, whatever it was doing.
func (w *Widget) DetachMap() {
	if w.closed || w.surface == nil {
		return
	}
	w.orch.Cancel(orchestrator.KindSolve)
	w.orch.CancelSearch()
	w.releaseMap()
	w.surface = nil

	w.facility.Clear()
	w.zones = nil
	w.status = StatusReady
	w.message = ""
	w.notify()
}

// releaseMap drops every map subscription, the hit-test loop and the layers.
func (w *Widget) releaseMap() {
	if w.pickRelease != nil {
		w.pickRelease()
		w.pickRelease = nil
	}
	w.releaseScope(&w.pickSubs)
	w.releaseScope(&w.dragSubs)
	w.releaseScope(&w.facilitySubs)
	if w.feedback != nil {
		w.feedback.Close()
		w.feedback = nil
	}
	if w.surface != nil {
		d := w.surface.Display()
		d.RemoveLayer(mapview.LayerZones)
		d.RemoveLayer(mapview.LayerFacility)
		w.setCursor(CursorDefault)
	}
}

func (w *Widget) releaseScope(s **scope.Scope) {
	if *s != nil {
		(*s).Close()
		*s = nil
	}
}

// SetPickMode turns map-click facility placement on or off. Turning it off
// keeps the click subscription for PickGrace.
func (w *Widget) SetPickMode(on bool) {
	if w.closed || w.pickMode == on {
		return
	}
	w.pickMode = on
	if on {
		if w.pickRelease != nil {
			w.pickRelease()
			w.pickRelease = nil
		}
		if w.surface != nil && w.pickSubs == nil {
			w.subscribePick()
		}
		w.notify()
		return
	}
	if w.pickSubs != nil {
		w.pickRelease = w.loop.AfterFunc(PickGrace, func() {
			w.pickRelease = nil
			if !w.pickMode {
				w.releaseScope(&w.pickSubs)
				w.setCursor(CursorDefault)
			}
		})
	}
	w.notify()
}

func (w *Widget) subscribePick() {
	w.pickSubs = scope.New()
	w.pickSubs.Add(w.surface.On(mapview.Click, func(ev *mapview.Event) {
		w.facility.SetFromMapClick(ev.World)
	}))
	w.setCursor(CursorCrosshair)
}

// SelectFacility sets the facility from a chosen search result.
func (w *Widget) SelectFacility(p orb.Point, label string) {
	if w.closed {
		return
	}
	w.facility.SetFromSearchResult(p, label)
}

// PlaceFacility sets the facility from a map point, labelled by reverse geocode.
func (w *Widget) PlaceFacility(p orb.Point) {
	if w.closed {
		return
	}
	w.facility.SetFromMapClick(p)
}

// Search resolves free text to a facility. No match clears the facility.
func (w *Widget) Search(text string) {
	if w.closed {
		return
	}
	w.facility.Search(text)
}

// ClearFacility removes the facility.
func (w *Widget) ClearFacility() {
	if w.closed {
		return
	}
	w.facility.Clear()
}

// Facility exposes the controller for hosts that drive gestures directly.
func (w *Widget) Facility() *facility.Controller { return w.facility }

func (w *Widget) onFacilityChange(ch facility.Change) {
	if w.closed {
		return
	}
	switch ch.Kind {
	case facility.Replaced:
		w.bindFacility(ch.Current)
		w.renderFacility(true)
		w.evaluate()
	default:
		w.renderFacility(false)
		w.notify()
	}
}

// bindFacility wires hover and drag for the current facility marker.
func (w *Widget) bindFacility(f *facility.Facility) {
	w.releaseScope(&w.dragSubs)
	w.releaseScope(&w.facilitySubs)
	if f == nil || w.surface == nil {
		return
	}
	s := w.surface
	w.facilitySubs = scope.New()
	w.facilitySubs.Add(
		s.On(mapview.PointerMove, func(ev *mapview.Event) {
			if w.facility.Dragging() {
				return
			}
			over := w.facility.Current().Hit(ev, FacilityRadius)
			w.facility.SetHovered(over)
			if w.pickSubs != nil && !over {
				w.setCursor(CursorCrosshair)
			} else if over {
				w.setCursor(CursorPointer)
			} else {
				w.setCursor(CursorDefault)
			}
		}),
		s.On(mapview.PointerDown, func(ev *mapview.Event) {
			if !w.facility.Current().Hit(ev, FacilityRadius) {
				return
			}
			ev.StopPropagation()
			if !w.facility.BeginDrag() {
				return
			}
			w.releaseScope(&w.dragSubs)
			w.dragSubs = scope.New()
			w.dragSubs.Add(
				s.On(mapview.Drag, func(ev *mapview.Event) {
					ev.StopPropagation()
					w.facility.UpdateDragPosition(ev.World)
				}),
				s.On(mapview.PointerUp, func(*mapview.Event) {
					w.releaseScope(&w.dragSubs)
					w.facility.EndDrag()
				}),
			)
		}),
	)
}

func (w *Widget) setZones(zs []zones.Zone) {
	w.zones = zs
	w.renderZones()
}

// renderZones draws the zones and runs the hit-test tooltip over them while
// they are on the map.
func (w *Widget) renderZones() {
	if w.surface == nil {
		return
	}
	d := w.surface.Display()
	if w.feedback != nil {
		w.feedback.Close()
		w.feedback = nil
	}
	if len(w.zones) == 0 {
		d.RemoveLayer(mapview.LayerZones)
		return
	}
	d.SetLayer(mapview.LayerZones, zones.FeatureCollection(w.zones))
	w.feedback = hittest.Enable(w.loop, w.surface, mapview.LayerZones, zones.NewLayer(w.zones))
}

func (w *Widget) renderFacility(center bool) {
	if w.surface == nil {
		return
	}
	d := w.surface.Display()
	f := w.facility.Current()
	if f == nil {
		d.RemoveLayer(mapview.LayerFacility)
		return
	}
	d.SetLayer(mapview.LayerFacility, facilityFeatures(f, w.settings.FacilityColor))
	if center {
		d.GoTo(f.Point)
	}
}

func facilityFeatures(f *facility.Facility, color string) *geojson.FeatureCollection {
	feat := geojson.NewFeature(f.Point)
	feat.ID = f.ID
	feat.Properties["label"] = f.Label
	feat.Properties["state"] = string(f.State)
	feat.Properties["color"] = color
	fc := geojson.NewFeatureCollection()
	fc.Append(feat)
	return fc
}

func (w *Widget) setCursor(c string) {
	if w.surface == nil || w.cursor == c {
		return
	}
	w.cursor = c
	w.surface.Display().SetCursor(c)
}
