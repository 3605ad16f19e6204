package widget

import (
	"slices"

	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/params"
	"github.com/joeblew999/plat-servicearea/internal/zones"
)

// UpdateSettings applies new settings. Invalid settings disable the widget
// and cancel everything in flight; the returned error is the
// *apperr.ConfigurationError shown to the user.
func (w *Widget) UpdateSettings(s config.Settings) error {
	if w.closed {
		return nil
	}
	prev := w.settings
	prevErr := w.settingsErr
	w.settings = s

	if err := s.Validate(); err != nil {
		w.settingsErr = err
		w.orch.CancelAll()
		w.setZones(nil)
		w.metadata = nil
		w.notify()
		return err
	}
	w.settingsErr = nil

	if !slices.Equal(prev.GeocodeURLs, s.GeocodeURLs) || prev.SearchPrecedence != s.SearchPrecedence {
		w.orch.SetGeocoder(w.geocoderFor(s))
		w.facility.SetResolver(w.resolver())
	}
	if !slices.Equal(prev.Colors, s.Colors) && len(w.zones) > 0 {
		w.setZones(zones.Recolor(w.zones, s.Colors, nil))
	}
	if prev.FacilityColor != s.FacilityColor {
		w.renderFacility(false)
	}

	before := w.params.Query()
	after := w.params.SetLimits(limitsFrom(s))

	switch {
	case prevErr != nil || prev.ServiceAreaURL != s.ServiceAreaURL:
		w.fetchMetadata()
	case after != before || solveInputsChanged(prev, s):
		w.evaluate()
	default:
		w.notify()
	}
	return nil
}

func solveInputsChanged(a, b config.Settings) bool {
	return a.TrimDistance != b.TrimDistance || !slices.Equal(a.ExcludedSources, b.ExcludedSources)
}

// ConfigurationError returns the error disabling the widget, if any.
func (w *Widget) ConfigurationError() error {
	if w.settingsErr != nil {
		return w.settingsErr
	}
	if !w.mapConfigured {
		return errNoMap
	}
	return nil
}

// Query returns the current parameters.
func (w *Widget) Query() params.Query { return w.params.Query() }
