package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/facility"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
	"github.com/joeblew999/plat-servicearea/internal/params"
	"github.com/joeblew999/plat-servicearea/internal/session"
	"github.com/joeblew999/plat-servicearea/internal/widget"
	"github.com/joeblew999/plat-servicearea/internal/zones"
)

// RegisterSessions registers the widget session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	tags := huma.OperationTags("sessions")

	huma.Get(api, "/api/v1/sessions", h.ListSessions, tags)
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Create a widget session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateSession)
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, tags)
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, tags)

	huma.Put(api, "/api/v1/sessions/{id}/facility", h.SetFacility, tags)
	huma.Delete(api, "/api/v1/sessions/{id}/facility", h.ClearFacility, tags)
	huma.Post(api, "/api/v1/sessions/{id}/search", h.Search, tags)
	huma.Put(api, "/api/v1/sessions/{id}/parameters", h.UpdateParameters, tags)
	huma.Put(api, "/api/v1/sessions/{id}/pick-mode", h.SetPickMode, tags)
	huma.Put(api, "/api/v1/sessions/{id}/map", h.SetMap, tags)
	huma.Post(api, "/api/v1/sessions/{id}/pointer", h.Pointer, tags)
	huma.Post(api, "/api/v1/sessions/{id}/retry", h.Retry, tags)
	huma.Get(api, "/api/v1/sessions/{id}/zones", h.GetZones, tags)
}

// --- Request/response types ---

type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type QueryBody struct {
	TravelDirection string `json:"travelDirection" enum:"from-facility,to-facility" doc:"Travel direction"`
	DateMode        string `json:"dateMode" enum:"date,dayOfWeek" doc:"Calendar date or weekday"`
	Date            string `json:"date,omitempty" doc:"Calendar date (YYYY-MM-DD)" example:"2024-03-11"`
	DayOfWeek       int    `json:"dayOfWeek" doc:"Weekday, 0 = Monday"`
	Time            string `json:"time,omitempty" doc:"Time of day (HH:MM)" example:"08:30"`
	Interval        int    `json:"interval" doc:"Minutes per zone"`
	Repetition      int    `json:"repetition" doc:"Number of zones"`
}

type SessionBody struct {
	ID             string             `json:"id" doc:"Session ID"`
	Created        time.Time          `json:"created" doc:"Creation time"`
	Status         string             `json:"status" enum:"disabled,loading,ready,info,error" doc:"Widget status"`
	Message        string             `json:"message,omitempty" doc:"User-facing message"`
	Facility       *facility.Facility `json:"facility,omitempty" doc:"Current facility"`
	Zones          []zones.Zone       `json:"zones,omitempty" doc:"Zones, largest first"`
	Query          QueryBody          `json:"query" doc:"Query parameters"`
	Breaks         []int              `json:"breaks" doc:"Travel-time thresholds (minutes)"`
	Valid          bool               `json:"valid" doc:"Whether the inputs allow a solve"`
	PickMode       bool               `json:"pickMode" doc:"Map clicks place the facility"`
	MapAttached    bool               `json:"mapAttached" doc:"A map surface is attached"`
	LastDataUpdate *time.Time         `json:"lastDataUpdate,omitempty" doc:"Network dataset build date"`
	Error          string             `json:"error,omitempty" doc:"Configuration error disabling the widget"`
}

type SessionOutput struct {
	Body SessionBody
}

type CreateSessionInput struct {
	Body struct {
		Detached bool             `json:"detached,omitempty" doc:"Start without a map attached"`
		Settings *config.Settings `json:"settings,omitempty" doc:"Per-session settings; defaults to the saved settings"`
	} `required:"false"`
}

type SessionSummary struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Status  string    `json:"status"`
}

type SessionListOutput struct {
	Body []SessionSummary
}

type FacilityInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Lon   float64 `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude"`
		Lat   float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
		Label string  `json:"label,omitempty" doc:"Label of a chosen search result; empty reverse geocodes the point"`
	}
}

type SearchInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Text string `json:"text" doc:"Free-text address or place"`
	}
}

type ParametersInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		TravelDirection *string `json:"travelDirection,omitempty" enum:"from-facility,to-facility"`
		DateMode        *string `json:"dateMode,omitempty" enum:"date,dayOfWeek"`
		Date            *string `json:"date,omitempty" doc:"YYYY-MM-DD; anything else unsets the date"`
		DayOfWeek       *int    `json:"dayOfWeek,omitempty" minimum:"0" maximum:"6"`
		Time            *string `json:"time,omitempty" doc:"HH:MM; anything else invalidates the query"`
		Interval        *int    `json:"interval,omitempty"`
		Repetition      *int    `json:"repetition,omitempty"`
	}
}

type ToggleInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Enabled bool `json:"enabled"`
	}
}

type PointerInput struct {
	ID   string `path:"id" doc:"Session ID"`
	Body struct {
		Kind       string  `json:"kind" enum:"pointer-move,pointer-down,pointer-up,pointer-leave,click,drag-start,drag,drag-end"`
		X          float64 `json:"x" doc:"Screen x (px)"`
		Y          float64 `json:"y" doc:"Screen y (px)"`
		Lon        float64 `json:"lon" doc:"Map longitude"`
		Lat        float64 `json:"lat" doc:"Map latitude"`
		Resolution float64 `json:"resolution" minimum:"0" doc:"Map units per pixel"`
	}
}

type PointerOutput struct {
	Body struct {
		Stopped bool `json:"stopped" doc:"The map must skip its default handling"`
	}
}

type ZonesOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// --- Handlers ---

func (h *APIHandler) ListSessions(ctx context.Context, input *struct{}) (*SessionListOutput, error) {
	out := &SessionListOutput{Body: []SessionSummary{}}
	for _, s := range h.svc.Sessions.List() {
		st, err := s.State()
		if err != nil {
			continue
		}
		out.Body = append(out.Body, SessionSummary{ID: s.ID, Created: s.Created, Status: string(st.Status)})
	}
	return out, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *CreateSessionInput) (*SessionOutput, error) {
	settings := h.svc.Settings.Get()
	if input.Body.Settings != nil {
		settings = *input.Body.Settings
	}
	s, err := h.svc.Sessions.Create(settings, !input.Body.Detached)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to create session", err)
	}
	return h.sessionOutput(s, nil)
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.do(input.ID, nil)
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionIDInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Sessions.Delete(input.ID); err != nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session closed"}}, nil
}

func (h *APIHandler) SetFacility(ctx context.Context, input *FacilityInput) (*SessionOutput, error) {
	p := orb.Point{input.Body.Lon, input.Body.Lat}
	return h.do(input.ID, func(w *widget.Widget) {
		if input.Body.Label != "" {
			w.SelectFacility(p, input.Body.Label)
			return
		}
		w.PlaceFacility(p)
	})
}

func (h *APIHandler) ClearFacility(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.do(input.ID, func(w *widget.Widget) { w.ClearFacility() })
}

func (h *APIHandler) Search(ctx context.Context, input *SearchInput) (*SessionOutput, error) {
	return h.do(input.ID, func(w *widget.Widget) { w.Search(input.Body.Text) })
}

func (h *APIHandler) UpdateParameters(ctx context.Context, input *ParametersInput) (*SessionOutput, error) {
	b := input.Body
	return h.do(input.ID, func(w *widget.Widget) {
		w.UpdateParameters(func(m *params.Model) {
			if b.DateMode != nil {
				m.SetDateMode(params.DateMode(*b.DateMode))
			}
			if b.TravelDirection != nil {
				m.SetTravelDirection(params.TravelDirection(*b.TravelDirection))
			}
			if b.Date != nil {
				m.SetDateString(*b.Date)
			}
			if b.DayOfWeek != nil {
				m.SetDayOfWeek(*b.DayOfWeek)
			}
			if b.Time != nil {
				m.SetTimeOfDayString(*b.Time)
			}
			if b.Interval != nil {
				m.SetInterval(*b.Interval)
			}
			if b.Repetition != nil {
				m.SetRepetition(*b.Repetition)
			}
		})
	})
}

func (h *APIHandler) SetPickMode(ctx context.Context, input *ToggleInput) (*SessionOutput, error) {
	return h.do(input.ID, func(w *widget.Widget) { w.SetPickMode(input.Body.Enabled) })
}

func (h *APIHandler) SetMap(ctx context.Context, input *ToggleInput) (*SessionOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return h.sessionOutput(s, func(w *widget.Widget) {
		if input.Body.Enabled {
			w.AttachMap(s.Surface())
			return
		}
		w.DetachMap()
	})
}

// Pointer feeds one browser map event to the widget. The reply tells the
// page whether to suppress the map's own handling, so it must be answered
// before the page continues.
func (h *APIHandler) Pointer(ctx context.Context, input *PointerInput) (*PointerOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	b := input.Body
	ev := &mapview.Event{
		Kind:       mapview.EventKind(b.Kind),
		Screen:     mapview.ScreenPoint{X: b.X, Y: b.Y},
		World:      orb.Point{b.Lon, b.Lat},
		Resolution: b.Resolution,
	}
	if !ev.Kind.Valid() {
		return nil, huma.Error400BadRequest("unknown event kind: " + b.Kind)
	}
	out := &PointerOutput{}
	if err := s.Do(func(*widget.Widget) { out.Body.Stopped = s.Surface().Dispatch(ev) }); err != nil {
		return nil, loopError(err)
	}
	return out, nil
}

func (h *APIHandler) Retry(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	return h.do(input.ID, func(w *widget.Widget) { w.RetryMetadata() })
}

// GetZones returns the current zones as a GeoJSON FeatureCollection.
func (h *APIHandler) GetZones(ctx context.Context, input *SessionIDInput) (*ZonesOutput, error) {
	s, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	st, err := s.State()
	if err != nil {
		return nil, loopError(err)
	}
	data, err := json.Marshal(zones.FeatureCollection(st.Zones))
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to encode zones", err)
	}
	return &ZonesOutput{ContentType: "application/geo+json", Body: data}, nil
}

// do runs fn on the session and returns the resulting state.
func (h *APIHandler) do(id string, fn func(w *widget.Widget)) (*SessionOutput, error) {
	s, err := h.session(id)
	if err != nil {
		return nil, err
	}
	return h.sessionOutput(s, fn)
}

func (h *APIHandler) sessionOutput(s *session.Session, fn func(w *widget.Widget)) (*SessionOutput, error) {
	var (
		st     widget.State
		cfgErr error
	)
	err := s.Do(func(w *widget.Widget) {
		if fn != nil {
			fn(w)
		}
		st = w.State()
		cfgErr = w.ConfigurationError()
	})
	if err != nil {
		return nil, loopError(err)
	}
	body := NewSessionBody(s.ID, s.Created, st)
	if cfgErr != nil {
		body.Error = cfgErr.Error()
	}
	return &SessionOutput{Body: body}, nil
}

// NewSessionBody flattens a widget snapshot for the API and the status panel.
func NewSessionBody(id string, created time.Time, st widget.State) SessionBody {
	b := SessionBody{
		ID:          id,
		Created:     created,
		Status:      string(st.Status),
		Message:     st.Message,
		Facility:    st.Facility,
		Zones:       st.Zones,
		Query:       newQueryBody(st.Query),
		Breaks:      st.Breaks,
		Valid:       st.Valid(),
		PickMode:    st.PickMode,
		MapAttached: st.MapAttached,
	}
	if b.Breaks == nil {
		b.Breaks = []int{}
	}
	if !st.LastDataUpdate.IsZero() {
		t := st.LastDataUpdate
		b.LastDataUpdate = &t
	}
	return b
}

func newQueryBody(q params.Query) QueryBody {
	b := QueryBody{
		TravelDirection: string(q.TravelDirection),
		DateMode:        string(q.DateMode),
		DayOfWeek:       q.DayOfWeek,
		Interval:        q.Interval,
		Repetition:      q.Repetition,
	}
	if !q.Date.IsZero() {
		b.Date = q.Date.Format(time.DateOnly)
	}
	if q.Clock.Valid {
		b.Time = time.Date(2000, 1, 1, q.Clock.Hours, q.Clock.Minutes, 0, 0, time.UTC).Format("15:04")
	}
	return b
}
