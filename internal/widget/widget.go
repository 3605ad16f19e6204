// Package widget is the service-area widget's state machine. It composes the
// facility controller, parameter model, request orchestrator and zone
// processing, derives the status, and decides when to solve.
//
// A Widget is confined to its loop: every exported method must run there.
package widget

import (
	"errors"
	"log"
	"time"

	"github.com/joeblew999/plat-servicearea/internal/apperr"
	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/facility"
	"github.com/joeblew999/plat-servicearea/internal/hittest"
	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
	"github.com/joeblew999/plat-servicearea/internal/orchestrator"
	"github.com/joeblew999/plat-servicearea/internal/params"
	"github.com/joeblew999/plat-servicearea/internal/scope"
	"github.com/joeblew999/plat-servicearea/internal/zones"
)

// Status is the widget status shown to the user.
type Status string

const (
	StatusReady    Status = "ready"
	StatusLoading  Status = "loading"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
	StatusInfo     Status = "info"
)

// EmptySolveMessage is shown when the solver returns no polygons.
const EmptySolveMessage = "Empty solve result"

// FacilityRadius is the facility marker's hit radius in screen pixels.
const FacilityRadius = 12.0

// PickGrace keeps the map click subscription alive after pick mode ends, so
// the click that ended it still places the facility.
const PickGrace = 500 * time.Millisecond

var errNoMap = &apperr.ConfigurationError{Reason: "Select a map to use the service area widget"}

// State is an immutable snapshot of the widget.
type State struct {
	Status         Status              `json:"status"`
	Message        string              `json:"message,omitempty"`
	Facility       *facility.Facility  `json:"facility,omitempty"`
	Zones          []zones.Zone        `json:"zones,omitempty"`
	Query          params.Query        `json:"-"`
	Breaks         []int               `json:"breaks"`
	Metadata       *naservice.Metadata `json:"-"`
	LastDataUpdate time.Time           `json:"lastDataUpdate,omitempty"`
	PickMode       bool                `json:"pickMode"`
	MapAttached    bool                `json:"mapAttached"`
	Limits         params.Limits       `json:"-"`
}

// Valid reports whether the snapshot describes a solvable query.
func (s State) Valid() bool {
	return isValid(s.Facility, s.Query)
}

// Outcome describes a finished solve.
type Outcome struct {
	Facility facility.Facility
	Query    params.Query
	Breaks   []int
	// TimeOfDay is the instant sent to the solver.
	TimeOfDay time.Time
	Status    Status
	Message   string
	Zones     int
	Elapsed   time.Duration
	At        time.Time
}

// Hooks let the host observe the widget without touching its state.
type Hooks struct {
	// OnSolve runs on the loop after every solve that was not superseded.
	OnSolve func(Outcome)
	// OnSearchMiss runs on the loop when a facility search finds nothing.
	OnSearchMiss func(text string)
}

// Options configure New.
type Options struct {
	Loop     loop.Loop
	Service  orchestrator.Service
	Observer orchestrator.Observer
	// NewGeocoder builds the search collaborator for a settings value. Nil
	// or a nil result means no search source.
	NewGeocoder func(config.Settings) orchestrator.Geocoder
	Settings    config.Settings
	Hooks       Hooks
	// Now defaults to time.Now.
	Now func() time.Time
}

// Widget is the top-level coordinator.
type Widget struct {
	loop     loop.Loop
	orch     *orchestrator.Orchestrator
	facility *facility.Controller
	params   *params.Model
	hooks    Hooks
	now      func() time.Time

	settings    config.Settings
	settingsErr error
	newGeocoder func(config.Settings) orchestrator.Geocoder

	status   Status
	message  string
	metadata *naservice.Metadata
	zones    []zones.Zone
	pickMode bool

	surface       *mapview.Surface
	mapConfigured bool
	feedback      *hittest.Feedback
	facilitySubs  *scope.Scope
	dragSubs      *scope.Scope
	pickSubs      *scope.Scope
	pickRelease   func()
	cursor        string

	subscribers []subscriber
	nextSub     int
	closed      bool
}

type subscriber struct {
	id int
	fn func(State)
}

// New builds a widget. Invalid settings leave it disabled; valid settings
// start the metadata fetch.
func New(opts Options) *Widget {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	w := &Widget{
		loop:        opts.Loop,
		hooks:       opts.Hooks,
		now:         now,
		settings:    opts.Settings,
		newGeocoder: opts.NewGeocoder,
		status:      StatusLoading,
	}
	w.orch = orchestrator.New(opts.Loop, opts.Service, w.geocoderFor(opts.Settings), opts.Observer)

	w.facility = facility.New(w.resolver())
	w.facility.OnSearchError = w.onSearchError
	w.facility.OnReverseError = func(err error) {
		log.Printf("reverse geocode failed, keeping unlabelled facility: %v", err)
	}
	w.facility.OnSearchMiss = func(text string) {
		if w.hooks.OnSearchMiss != nil {
			w.hooks.OnSearchMiss(text)
		}
	}
	w.facility.Subscribe(w.onFacilityChange)

	loc := opts.Settings.Location()
	t := now().In(loc)
	w.params = params.New(limitsFrom(opts.Settings), loc, params.Query{
		TravelDirection: params.FromFacility,
		DateMode:        params.ModeDate,
		Date:            time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc),
		DayOfWeek:       opts.Settings.DayOfWeek,
		Clock:           params.Clock{Hours: t.Hour(), Minutes: t.Minute(), Valid: true},
		Interval:        opts.Settings.Interval,
		Repetition:      opts.Settings.Repetition,
	})

	if err := opts.Settings.Validate(); err != nil {
		w.settingsErr = err
		return w
	}
	w.fetchMetadata()
	return w
}

func (w *Widget) geocoderFor(s config.Settings) orchestrator.Geocoder {
	if w.newGeocoder == nil || len(s.GeocodeURLs) == 0 {
		return nil
	}
	return w.newGeocoder(s)
}

// resolver is nil without a geocoder, so map clicks place the facility at
// once with no label.
func (w *Widget) resolver() facility.Resolver {
	if w.orch.CanSearch() {
		return w.orch
	}
	return nil
}

func limitsFrom(s config.Settings) params.Limits {
	return params.Limits{
		IntervalMin:   s.IntervalMin,
		IntervalMax:   s.IntervalMax,
		IntervalStep:  s.IntervalStep,
		RepetitionMin: s.RepetitionMin,
		RepetitionMax: s.RepetitionMax,
		MaxTravelTime: s.MaxTravelTime,
	}
}

// State returns the current snapshot.
func (w *Widget) State() State {
	status, message := w.derivedStatus()
	s := State{
		Status:      status,
		Message:     message,
		Facility:    w.facility.Current(),
		Zones:       w.zones,
		Query:       w.params.Query(),
		Breaks:      w.params.Breaks(),
		Metadata:    w.metadata,
		PickMode:    w.pickMode,
		MapAttached: w.surface != nil,
		Limits:      w.params.Limits(),
	}
	if d, ok := w.metadata.DataUpdate(); ok {
		s.LastDataUpdate = d
	}
	return s
}

func (w *Widget) derivedStatus() (Status, string) {
	if w.settingsErr != nil {
		return StatusDisabled, apperr.Message(w.settingsErr)
	}
	if !w.mapConfigured {
		return StatusDisabled, apperr.Message(errNoMap)
	}
	return w.status, w.message
}

// Settings returns the settings in force.
func (w *Widget) Settings() config.Settings { return w.settings }

// Location returns the zone used for time of day.
func (w *Widget) Location() *time.Location { return w.params.Location() }

// Subscribe registers fn to receive a snapshot after every state change.
func (w *Widget) Subscribe(fn func(State)) (unsubscribe func()) {
	w.nextSub++
	id := w.nextSub
	w.subscribers = append(w.subscribers, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range w.subscribers {
			if s.id == id {
				w.subscribers = append(w.subscribers[:i:i], w.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (w *Widget) notify() {
	if w.closed || len(w.subscribers) == 0 {
		return
	}
	s := w.State()
	for _, sub := range append([]subscriber(nil), w.subscribers...) {
		sub.fn(s)
	}
}

// Pending reports whether a request of kind is in flight.
func (w *Widget) Pending(kind orchestrator.Kind) bool { return w.orch.Pending(kind) }

// Close tears the widget down: pending requests first, then map
// subscriptions, the hit-test loop with its animation frame, and the layers.
func (w *Widget) Close() {
	if w.closed {
		return
	}
	w.orch.CancelAll()
	w.releaseMap()
	w.closed = true
	w.subscribers = nil
}

func (w *Widget) onSearchError(err error) {
	if errors.Is(err, apperr.ErrSuperseded) {
		return
	}
	w.status = StatusInfo
	w.message = apperr.Message(err)
	w.notify()
}
