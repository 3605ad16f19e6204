package widget

import (
	"log"

	"github.com/joeblew999/plat-servicearea/internal/apperr"
	"github.com/joeblew999/plat-servicearea/internal/facility"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
	"github.com/joeblew999/plat-servicearea/internal/orchestrator"
	"github.com/joeblew999/plat-servicearea/internal/params"
	"github.com/joeblew999/plat-servicearea/internal/zones"
)

// isValid: a facility, a usable date, and a numeric time of day.
func isValid(f *facility.Facility, q params.Query) bool {
	if f == nil || !q.Clock.Valid {
		return false
	}
	_, ok := q.TimeOfDay(nil)
	return ok
}

// Valid reports whether the current inputs allow a solve.
func (w *Widget) Valid() bool {
	return isValid(w.facility.Current(), w.params.Query())
}

// evaluate is the change-detection rule: solve when valid, otherwise drop
// the result. Without metadata the service-dependent path is idle.
func (w *Widget) evaluate() {
	if w.closed {
		return
	}
	if w.settingsErr != nil || w.metadata == nil {
		w.notify()
		return
	}
	if w.Valid() {
		w.solve()
		return
	}
	w.clear()
}

// clear cancels any solve and returns to ready with no result.
func (w *Widget) clear() {
	w.orch.Cancel(orchestrator.KindSolve)
	w.setZones(nil)
	w.status = StatusReady
	w.message = ""
	w.notify()
}

func (w *Widget) solve() {
	f := w.facility.Current()
	q := w.params.Query()
	tod, _ := w.params.TimeOfDay()
	breaks := w.params.Breaks()
	req := naservice.SolveRequest{
		Facility:        f.Point,
		FacilityLabel:   f.Label,
		Breaks:          breaks,
		TravelDirection: q.TravelDirection,
		TimeOfDay:       tod,
		ExcludedSources: w.settings.ExcludedSources,
		TrimDistance:    w.settings.TrimDistance,
	}

	// No stale zones while the new ones are computed.
	w.setZones(nil)
	w.status = StatusLoading
	w.message = ""
	started := w.now()
	snapshot := *f

	w.orch.Solve(w.metadata, req, func(polys []naservice.Polygon, err error) {
		if apperr.IsSuperseded(err) || w.closed {
			return
		}
		switch {
		case err != nil:
			log.Printf("solve failed: %v", err)
			w.status = StatusInfo
			w.message = apperr.Message(err)
		case len(polys) == 0:
			w.status = StatusInfo
			w.message = EmptySolveMessage
		default:
			w.setZones(zones.Process(polys, w.settings.Colors, nil))
			w.status = StatusReady
			w.message = ""
		}
		if w.hooks.OnSolve != nil {
			w.hooks.OnSolve(Outcome{
				Facility:  snapshot,
				Query:     q,
				Breaks:    breaks,
				TimeOfDay: tod,
				Status:    w.status,
				Message:   w.message,
				Zones:     len(w.zones),
				Elapsed:   w.now().Sub(started),
				At:        started,
			})
		}
		w.notify()
	})
	w.notify()
}

// fetchMetadata (re)loads the layer description. Zones from the previous
// service are dropped.
func (w *Widget) fetchMetadata() {
	w.orch.Cancel(orchestrator.KindSolve)
	w.setZones(nil)
	w.metadata = nil
	w.status = StatusLoading
	w.message = ""
	url := w.settings.ServiceAreaURL

	w.orch.FetchMetadata(url, func(md *naservice.Metadata, err error) {
		if apperr.IsSuperseded(err) || w.closed {
			return
		}
		if err != nil {
			log.Printf("metadata fetch failed: %s: %v", url, err)
			w.metadata = nil
			w.status = StatusError
			w.message = apperr.Message(err)
			w.notify()
			return
		}
		w.metadata = md
		w.status = StatusReady
		w.message = ""
		if w.Valid() {
			w.solve()
			return
		}
		w.notify()
	})
	w.notify()
}

// RetryMetadata refetches the layer description after an error.
func (w *Widget) RetryMetadata() {
	if w.closed || w.settingsErr != nil {
		return
	}
	w.fetchMetadata()
}

// UpdateParameters applies fn to the parameter model and re-evaluates when
// the query changed.
func (w *Widget) UpdateParameters(fn func(m *params.Model)) params.Query {
	before := w.params.Query()
	fn(w.params)
	after := w.params.Query()
	if after != before {
		w.evaluate()
	}
	return after
}

// SetInterval sets the minutes per zone.
func (w *Widget) SetInterval(v int) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetInterval(v) })
}

// SetRepetition sets the zone count.
func (w *Widget) SetRepetition(v int) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetRepetition(v) })
}

// SetDateString sets the calendar date (YYYY-MM-DD); bad input unsets it.
func (w *Widget) SetDateString(s string) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetDateString(s) })
}

// SetDayOfWeek sets the weekday for day-of-week mode.
func (w *Widget) SetDayOfWeek(idx int) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetDayOfWeek(idx) })
}

// SetTimeOfDay sets hours and minutes.
func (w *Widget) SetTimeOfDay(h, min int) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetTimeOfDay(h, min) })
}

// SetTimeOfDayString sets HH:MM; bad input makes the query invalid.
func (w *Widget) SetTimeOfDayString(s string) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetTimeOfDayString(s) })
}

// SetTravelDirection switches the travel direction.
func (w *Widget) SetTravelDirection(dir params.TravelDirection) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetTravelDirection(dir) })
}

// SetDateMode switches between calendar date and weekday.
func (w *Widget) SetDateMode(mode params.DateMode) params.Query {
	return w.UpdateParameters(func(m *params.Model) { m.SetDateMode(mode) })
}
