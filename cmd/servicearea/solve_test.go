package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-servicearea/internal/config"
)

const metadataJSON = `{
	"layerName": "ServiceArea",
	"layerType": "esriNAServerServiceAreaLayer",
	"impedance": "TravelTime",
	"defaultTravelMode": "1",
	"supportedTravelModes": [
		{"id": "1", "name": "Drive", "impedanceAttributeName": "TravelTime"}
	]
}`

const solveJSON = `{"saPolygons":{"features":[
	{"attributes":{"FromBreak":10,"ToBreak":20},"geometry":{"rings":[[[0,0],[0,4],[4,4],[4,0],[0,0]]]}},
	{"attributes":{"FromBreak":0,"ToBreak":10},"geometry":{"rings":[[[1,1],[1,2],[2,2],[2,1],[1,1]]]}}
]}}`

// fakeArcGIS serves the network-analysis layer and a geocode server whose
// findAddressCandidates answer is fixed per test.
type fakeArcGIS struct {
	*httptest.Server
	mu         sync.Mutex
	facilities []string
}

func newFakeArcGIS(t *testing.T, find func(w http.ResponseWriter)) *fakeArcGIS {
	t.Helper()
	f := &fakeArcGIS{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/findAddressCandidates"):
			find(w)
		case strings.HasSuffix(r.URL.Path, "/solveServiceArea"):
			r.ParseForm()
			f.mu.Lock()
			f.facilities = append(f.facilities, r.FormValue("facilities"))
			f.mu.Unlock()
			w.Write([]byte(solveJSON))
		default:
			w.Write([]byte(metadataJSON))
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeArcGIS) settings() config.Settings {
	s := config.Default()
	s.ServiceAreaURL = f.URL + "/NAServer/ServiceArea"
	s.GeocodeURLs = []string{f.URL + "/GeocodeServer"}
	s.Timezone = "UTC"
	return s
}

func (f *fakeArcGIS) solvedAt() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.facilities...)
}

func TestSolveAtPoint(t *testing.T) {
	gis := newFakeArcGIS(t, func(w http.ResponseWriter) { w.Write([]byte(`{"candidates":[]}`)) })
	cmd := newSolveCmd()
	cmd.Flags().Set("lon", "14.42")
	cmd.Flags().Set("lat", "50.08")
	f := solveFlags{lon: 14.42, lat: 50.08, dayOfWeek: -1, timeout: 5 * time.Second}

	out, err := runSolve(cmd, gis.settings(), f)
	if err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	fc, ok := out.(*geojson.FeatureCollection)
	if !ok || len(fc.Features) != 2 {
		t.Fatalf("out=%#v, want two zones", out)
	}
	if got := fc.Features[0].Properties["toBreak"]; got != 20.0 {
		t.Fatalf("first toBreak=%v, want the larger zone first", got)
	}
}

func TestSolveBySearch(t *testing.T) {
	gis := newFakeArcGIS(t, func(w http.ResponseWriter) {
		w.Write([]byte(`{"candidates":[{"address":"Main St 1, Town","score":98,"location":{"x":14.42,"y":50.08}}]}`))
	})
	cmd := newSolveCmd()
	cmd.Flags().Set("search", "Main St 1")
	f := solveFlags{search: "Main St 1", dayOfWeek: -1, timeout: 5 * time.Second}

	out, err := runSolve(cmd, gis.settings(), f)
	if err != nil {
		t.Fatalf("runSolve: %v", err)
	}
	if fc := out.(*geojson.FeatureCollection); len(fc.Features) != 2 {
		t.Fatalf("features=%d, want 2", len(fc.Features))
	}
	solved := gis.solvedAt()
	if len(solved) != 1 || !strings.Contains(solved[0], "14.42") {
		t.Fatalf("facilities=%q, want the found address", solved)
	}
}

func TestSolveSearchWithoutMatchFails(t *testing.T) {
	gis := newFakeArcGIS(t, func(w http.ResponseWriter) { w.Write([]byte(`{"candidates":[]}`)) })
	cmd := newSolveCmd()
	cmd.Flags().Set("search", "Nowhere 99")
	f := solveFlags{search: "Nowhere 99", dayOfWeek: -1, timeout: 5 * time.Second}

	start := time.Now()
	_, err := runSolve(cmd, gis.settings(), f)
	if err == nil || !strings.Contains(err.Error(), "no facility found") {
		t.Fatalf("err=%v, want no facility found", err)
	}
	if time.Since(start) >= f.timeout {
		t.Fatal("waited for the timeout")
	}
	if solved := gis.solvedAt(); len(solved) != 0 {
		t.Fatalf("facilities=%q, want no solve", solved)
	}
}

func TestSolveSearchGeocoderErrorFails(t *testing.T) {
	gis := newFakeArcGIS(t, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	cmd := newSolveCmd()
	cmd.Flags().Set("search", "Main St 1")
	f := solveFlags{search: "Main St 1", dayOfWeek: -1, timeout: 5 * time.Second}

	start := time.Now()
	_, err := runSolve(cmd, gis.settings(), f)
	if err == nil || strings.Contains(err.Error(), "no result after") {
		t.Fatalf("err=%v, want the geocoder failure", err)
	}
	if time.Since(start) >= f.timeout {
		t.Fatal("waited for the timeout")
	}
}
