package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joeblew999/plat-servicearea/internal/api"
	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/history"
)

const metadataJSON = `{
	"layerName": "ServiceArea",
	"layerType": "esriNAServerServiceAreaLayer",
	"impedance": "TravelTime",
	"defaultTravelMode": "1",
	"supportedTravelModes": [
		{"id": "1", "name": "Drive", "description": "v 2024-02-01 streets", "impedanceAttributeName": "TravelTime"}
	]
}`

const solveJSON = `{"saPolygons":{"features":[
	{"attributes":{"FromBreak":10,"ToBreak":20},"geometry":{"rings":[[[0,0],[0,4],[4,4],[4,0],[0,0]]]}},
	{"attributes":{"FromBreak":0,"ToBreak":10},"geometry":{"rings":[[[1,1],[1,2],[2,2],[2,1],[1,1]]]}}
]}}`

// arcgisServer fakes the network-analysis layer.
func arcgisServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/solveServiceArea") {
			w.Write([]byte(solveJSON))
			return
		}
		w.Write([]byte(metadataJSON))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t    *testing.T
	base string
}

func (c client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			c.t.Fatalf("%s %s: decode %s: %v", method, path, data, err)
		}
	}
	return resp.StatusCode
}

func (c client) waitSession(id string, cond func(api.SessionBody) bool) api.SessionBody {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		var b api.SessionBody
		if code := c.do(http.MethodGet, "/api/v1/sessions/"+id, nil, &b); code != http.StatusOK {
			c.t.Fatalf("get session status=%d", code)
		}
		if cond(b) {
			return b
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("condition not reached, session=%+v", b)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndToEnd(t *testing.T) {
	gis := arcgisServer(t)

	srv, err := New(Config{DataDir: t.TempDir(), Timezone: "UTC"})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()
	c := client{t: t, base: ts.URL}

	settings := config.Default()
	settings.ServiceAreaURL = gis.URL + "/NAServer/ServiceArea"
	settings.Timezone = "UTC"
	if code := c.do(http.MethodPut, "/api/v1/settings", settings, nil); code != http.StatusOK {
		t.Fatalf("put settings status=%d", code)
	}

	var s api.SessionBody
	if code := c.do(http.MethodPost, "/api/v1/sessions", map[string]any{}, &s); code != http.StatusCreated {
		t.Fatalf("create status=%d", code)
	}
	c.waitSession(s.ID, func(b api.SessionBody) bool { return b.Status == "ready" })

	if code := c.do(http.MethodPut, "/api/v1/sessions/"+s.ID+"/facility",
		map[string]any{"lon": 14.42, "lat": 50.08, "label": "Depot"}, nil); code != http.StatusOK {
		t.Fatalf("facility status=%d", code)
	}
	b := c.waitSession(s.ID, func(b api.SessionBody) bool { return len(b.Zones) == 2 })
	if b.Zones[0].ToBreak != 20 {
		t.Fatalf("first zone ToBreak=%v, want the larger zone first", b.Zones[0].ToBreak)
	}
	if b.LastDataUpdate == nil || b.LastDataUpdate.Format("2006-01-02") != "2024-02-01" {
		t.Fatalf("lastDataUpdate=%v", b.LastDataUpdate)
	}

	// Saved settings reach live sessions: a new palette recolors the zones.
	settings.Colors = []string{"#000001", "#000002", "#000003"}
	if code := c.do(http.MethodPut, "/api/v1/settings", settings, nil); code != http.StatusOK {
		t.Fatalf("put settings status=%d", code)
	}
	b = c.waitSession(s.ID, func(b api.SessionBody) bool {
		return len(b.Zones) == 2 && strings.HasPrefix(b.Zones[0].Color, "#00000")
	})
	if b.Zones[1].Color != "#000001" {
		t.Fatalf("smallest zone color=%q, want #000001", b.Zones[1].Color)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`servicearea_sessions_active 1`,
		`servicearea_solve_outcomes_total{status="ready"} 1`,
		`servicearea_requests_total{kind="solve"} 1`,
	} {
		if !bytes.Contains(data, []byte(want)) {
			t.Fatalf("metrics missing %q", want)
		}
	}

	// History is recorded off the session loop; DuckDB may be unavailable.
	var entries []history.Entry
	deadline := time.Now().Add(3 * time.Second)
	for {
		code := c.do(http.MethodGet, "/api/v1/history?session="+s.ID, nil, &entries)
		if code == http.StatusServiceUnavailable {
			t.Log("history disabled, skipping history checks")
			break
		}
		if len(entries) > 0 {
			if entries[0].FacilityLabel != "Depot" || entries[0].Zones != 2 {
				t.Fatalf("history entry=%+v", entries[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no history recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if code := c.do(http.MethodDelete, "/api/v1/sessions/"+s.ID, nil, nil); code != http.StatusOK {
		t.Fatalf("delete status=%d", code)
	}
	if n := srv.Sessions().Len(); n != 0 {
		t.Fatalf("sessions=%d, want 0", n)
	}
}

func TestRootAndInfo(t *testing.T) {
	srv, err := New(Config{DataDir: t.TempDir(), NoHistory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	ts := httptest.NewServer(srv)
	defer ts.Close()
	c := client{t: t, base: ts.URL}

	var root map[string]any
	if code := c.do(http.MethodGet, "/", nil, &root); code != http.StatusOK || root["service"] != "plat-servicearea" {
		t.Fatalf("root=%v status=%d", root, code)
	}
	var info api.InfoBody
	if code := c.do(http.MethodGet, "/api/v1/info", nil, &info); code != http.StatusOK {
		t.Fatalf("info status=%d", code)
	}
	if info.DB || info.NATS {
		t.Fatalf("info=%+v, want no db and no nats", info)
	}
	if code := c.do(http.MethodGet, "/nope", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", code)
	}
}
