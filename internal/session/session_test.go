package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
	"github.com/joeblew999/plat-servicearea/internal/widget"
)

type instantService struct{}

func (instantService) FetchMetadata(ctx context.Context, url string) (*naservice.Metadata, error) {
	return &naservice.Metadata{URL: url, LayerType: naservice.ServiceAreaLayerType, Impedance: "TravelTime", DefaultTravelMode: "1"}, nil
}

func (instantService) Solve(ctx context.Context, md *naservice.Metadata, req naservice.SolveRequest) ([]naservice.Polygon, error) {
	ring := orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}
	return []naservice.Polygon{{FromBreak: 0, ToBreak: float64(req.Breaks[0]), Geometry: orb.MultiPolygon{{ring}}}}, nil
}

func settings() config.Settings {
	s := config.Default()
	s.ServiceAreaURL = "https://example.test/NAServer/ServiceArea"
	return s
}

func waitFor(t *testing.T, s *Session, cond func(widget.State) bool) widget.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := s.State()
		if err != nil {
			t.Fatal(err)
		}
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached, state=%+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionLifecycle(t *testing.T) {
	var counts []int
	solved := make(chan widget.Outcome, 1)
	r := NewRegistry(Options{
		Service: instantService{},
		OnSolve: func(_ *Session, o widget.Outcome) { solved <- o },
		OnCount: func(n int) { counts = append(counts, n) },
	})
	defer r.Close()

	s, err := r.Create(settings(), true)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := r.Get(s.ID); err != nil || got != s {
		t.Fatalf("Get=%v,%v", got, err)
	}
	waitFor(t, s, func(st widget.State) bool { return st.Metadata != nil })

	if err := s.Do(func(w *widget.Widget) { w.SelectFacility(orb.Point{0.5, 0.5}, "Depot") }); err != nil {
		t.Fatal(err)
	}
	st := waitFor(t, s, func(st widget.State) bool { return len(st.Zones) == 1 })
	if st.Status != widget.StatusReady {
		t.Fatalf("status=%s, want ready", st.Status)
	}
	select {
	case o := <-solved:
		if o.Facility.Label != "Depot" {
			t.Fatalf("outcome facility=%q", o.Facility.Label)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnSolve not called")
	}

	if err := r.Delete(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
	if err := r.Delete(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err=%v, want ErrNotFound", err)
	}
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 0 {
		t.Fatalf("counts=%v, want [1 0]", counts)
	}
}

func TestApplySettingsReachesSessions(t *testing.T) {
	r := NewRegistry(Options{Service: instantService{}})
	defer r.Close()
	s, err := r.Create(settings(), false)
	if err != nil {
		t.Fatal(err)
	}

	next := settings()
	next.FacilityColor = "#000000"
	r.ApplySettings(next)
	var got string
	s.Do(func(w *widget.Widget) { got = w.Settings().FacilityColor })
	if got != "#000000" {
		t.Fatalf("facility color=%q, want #000000", got)
	}
}
