package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
	"github.com/joeblew999/plat-servicearea/internal/service"
	"github.com/joeblew999/plat-servicearea/internal/session"
	"github.com/joeblew999/plat-servicearea/internal/templates"
)

type fakeService struct{}

func (fakeService) FetchMetadata(ctx context.Context, url string) (*naservice.Metadata, error) {
	return &naservice.Metadata{URL: url, LayerType: naservice.ServiceAreaLayerType, Impedance: "TravelTime", DefaultTravelMode: "1"}, nil
}

func (fakeService) Solve(ctx context.Context, md *naservice.Metadata, req naservice.SolveRequest) ([]naservice.Polygon, error) {
	ring := orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
	return []naservice.Polygon{{FromBreak: 0, ToBreak: float64(req.Breaks[0]), Geometry: orb.MultiPolygon{{ring}}}}, nil
}

func testSettings() config.Settings {
	s := config.Default()
	s.ServiceAreaURL = "https://example.test/NAServer/ServiceArea"
	s.Timezone = "UTC"
	return s
}

func newTestAPI(t *testing.T) (humatest.TestAPI, *Services) {
	t.Helper()
	_, api := humatest.New(t)

	settings, err := service.NewSettingsService("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := settings.Update(testSettings()); err != nil {
		t.Fatal(err)
	}
	renderer, err := templates.NewEmbedded()
	if err != nil {
		t.Fatal(err)
	}
	svc := &Services{
		Sessions: session.NewRegistry(session.Options{Service: fakeService{}}),
		Settings: settings,
		Renderer: renderer,
	}
	t.Cleanup(svc.Sessions.Close)
	RegisterRoutes(api, svc)
	return api, svc
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func createSession(t *testing.T, api humatest.TestAPI) SessionBody {
	t.Helper()
	resp := api.Post("/api/v1/sessions", map[string]any{})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", resp.Code, resp.Body.String())
	}
	return decode[SessionBody](t, resp.Body.Bytes())
}

// poll re-reads the session until cond holds.
func poll(t *testing.T, api humatest.TestAPI, id string, cond func(SessionBody) bool) SessionBody {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := api.Get("/api/v1/sessions/" + id)
		if resp.Code != http.StatusOK {
			t.Fatalf("get status=%d body=%s", resp.Code, resp.Body.String())
		}
		b := decode[SessionBody](t, resp.Body.Bytes())
		if cond(b) {
			return b
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, session=%+v", b)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	body := decode[HealthBody](t, resp.Body.Bytes())
	if body.Status != "ok" || body.Sessions != 0 {
		t.Fatalf("health=%+v", body)
	}
}

func TestSessionSolveFlow(t *testing.T) {
	api, _ := newTestAPI(t)
	s := createSession(t, api)
	if !s.MapAttached {
		t.Fatalf("new session should have its map attached")
	}
	poll(t, api, s.ID, func(b SessionBody) bool { return b.Status == "ready" })

	resp := api.Put("/api/v1/sessions/"+s.ID+"/facility", map[string]any{"lon": 0.5, "lat": 0.5, "label": "Depot"})
	if resp.Code != http.StatusOK {
		t.Fatalf("facility status=%d body=%s", resp.Code, resp.Body.String())
	}
	b := poll(t, api, s.ID, func(b SessionBody) bool { return len(b.Zones) == 1 })
	if b.Facility == nil || b.Facility.Label != "Depot" {
		t.Fatalf("facility=%+v", b.Facility)
	}
	if !b.Valid {
		t.Fatalf("valid=false with a facility and default time")
	}

	resp = api.Get("/api/v1/sessions/" + s.ID + "/zones")
	if resp.Code != http.StatusOK {
		t.Fatalf("zones status=%d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content-type=%q", ct)
	}
	fc := decode[struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}](t, resp.Body.Bytes())
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("zones=%s", resp.Body.String())
	}

	resp = api.Delete("/api/v1/sessions/" + s.ID + "/facility")
	if resp.Code != http.StatusOK {
		t.Fatalf("clear status=%d", resp.Code)
	}
	b = decode[SessionBody](t, resp.Body.Bytes())
	if b.Facility != nil || len(b.Zones) != 0 {
		t.Fatalf("after clear=%+v", b)
	}
}

func TestParametersClamp(t *testing.T) {
	api, _ := newTestAPI(t)
	s := createSession(t, api)

	resp := api.Put("/api/v1/sessions/"+s.ID+"/parameters", map[string]any{"interval": 60})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	b := decode[SessionBody](t, resp.Body.Bytes())
	if b.Query.Interval != 60 || b.Query.Repetition != 2 {
		t.Fatalf("query=%+v, want interval 60 repetition 2", b.Query)
	}
	if len(b.Breaks) != 2 || b.Breaks[1] != 120 {
		t.Fatalf("breaks=%v", b.Breaks)
	}

	resp = api.Put("/api/v1/sessions/"+s.ID+"/parameters", map[string]any{"time": "25:99"})
	b = decode[SessionBody](t, resp.Body.Bytes())
	if b.Query.Time != "" {
		t.Fatalf("time=%q, want unset", b.Query.Time)
	}
}

func TestPointerOnEmptyMap(t *testing.T) {
	api, _ := newTestAPI(t)
	s := createSession(t, api)

	resp := api.Post("/api/v1/sessions/"+s.ID+"/pointer", map[string]any{
		"kind": "pointer-down", "x": 10, "y": 10, "lon": 1, "lat": 1, "resolution": 1,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	out := decode[struct {
		Stopped bool `json:"stopped"`
	}](t, resp.Body.Bytes())
	if out.Stopped {
		t.Fatalf("pointer-down without a facility must propagate")
	}
}

func TestDetachedSessionIsDisabled(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Post("/api/v1/sessions", map[string]any{"detached": true})
	if resp.Code != http.StatusCreated {
		t.Fatalf("status=%d", resp.Code)
	}
	b := decode[SessionBody](t, resp.Body.Bytes())
	if b.Status != "disabled" || b.Error == "" {
		t.Fatalf("detached session=%+v", b)
	}

	resp = api.Put("/api/v1/sessions/"+b.ID+"/map", map[string]any{"enabled": true})
	b = decode[SessionBody](t, resp.Body.Bytes())
	if !b.MapAttached || b.Error != "" {
		t.Fatalf("after attach=%+v", b)
	}
}

func TestUnknownSession(t *testing.T) {
	api, _ := newTestAPI(t)
	for _, path := range []string{"/api/v1/sessions/nope", "/api/v1/sessions/nope/zones"} {
		if resp := api.Get(path); resp.Code != http.StatusNotFound {
			t.Fatalf("%s status=%d, want 404", path, resp.Code)
		}
	}
	if resp := api.Delete("/api/v1/sessions/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("delete status=%d, want 404", resp.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	api, svc := newTestAPI(t)
	s := createSession(t, api)
	if resp := api.Delete("/api/v1/sessions/" + s.ID); resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	if svc.Sessions.Len() != 0 {
		t.Fatalf("sessions=%d, want 0", svc.Sessions.Len())
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	api, svc := newTestAPI(t)

	next := testSettings()
	next.FacilityColor = "#00ff00"
	resp := api.Put("/api/v1/settings", next)
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if got := svc.Settings.Get().FacilityColor; got != "#00ff00" {
		t.Fatalf("facilityColor=%q", got)
	}

	bad := testSettings()
	bad.Colors = []string{"red"}
	resp = api.Put("/api/v1/settings", bad)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid settings status=%d, want 422", resp.Code)
	}
	if got := svc.Settings.Get().Colors; len(got) != len(testSettings().Colors) {
		t.Fatalf("invalid settings were stored: %v", got)
	}
}

func TestHistoryUnavailable(t *testing.T) {
	api, _ := newTestAPI(t)
	if resp := api.Get("/api/v1/history"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", resp.Code)
	}
}
