package live

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-servicearea/internal/mapview"
)

func next(t *testing.T, ch <-chan Command) Command {
	t.Helper()
	select {
	case c := <-ch:
		return c
	default:
		t.Fatal("no command published")
		return Command{}
	}
}

func TestDisplayFansOutCommands(t *testing.T) {
	d := NewDisplay()
	ch, cancel := d.Subscribe()
	defer cancel()

	d.SetLayer(mapview.LayerZones, geojson.NewFeatureCollection())
	if c := next(t, ch); c.Kind != CmdLayer || c.Layer != mapview.LayerZones {
		t.Fatalf("command=%+v", c)
	}

	remove := d.Highlight(mapview.LayerZones, "2")
	if c := next(t, ch); c.Kind != CmdHighlight || c.Feature != "2" {
		t.Fatalf("command=%+v", c)
	}
	remove()
	remove()
	if c := next(t, ch); c.Kind != CmdUnhighlight {
		t.Fatalf("command=%+v, want unhighlight", c)
	}
	if len(ch) != 0 {
		t.Fatalf("extra commands=%d, want 0", len(ch))
	}

	d.GoTo(orb.Point{14.4, 50.1})
	if c := next(t, ch); c.Center == nil || *c.Center != (orb.Point{14.4, 50.1}) {
		t.Fatalf("command=%+v", c)
	}
}

func TestSnapshotRebuildsPicture(t *testing.T) {
	d := NewDisplay()
	d.SetLayer(mapview.LayerFacility, geojson.NewFeatureCollection())
	d.SetCursor("pointer")
	d.PublishState(map[string]string{"status": "ready"})

	kinds := map[string]int{}
	for _, c := range d.Snapshot() {
		kinds[c.Kind]++
	}
	for _, k := range []string{CmdLayer, CmdCursor, CmdTooltip, CmdState} {
		if kinds[k] != 1 {
			t.Fatalf("snapshot %s=%d, want 1 (%v)", k, kinds[k], kinds)
		}
	}
}

func TestCloseEndsStreams(t *testing.T) {
	d := NewDisplay()
	ch, cancel := d.Subscribe()
	d.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Close")
	}
	cancel()

	late, _ := d.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscription after Close is open")
	}
	if d.Subscribers() != 0 {
		t.Fatalf("subscribers=%d, want 0", d.Subscribers())
	}
}
