// Package zones turns raw solver polygons into styled, draw-ordered zones.
package zones

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-servicearea/internal/hittest"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
)

// Zone is one styled service area polygon.
type Zone struct {
	ID        string           `json:"id"`
	FromBreak float64          `json:"fromBreak"`
	ToBreak   float64          `json:"toBreak"`
	Color     string           `json:"color"`
	Label     string           `json:"label"`
	Geometry  orb.MultiPolygon `json:"-"`
}

// ColorFunc supplies a color when the palette runs out.
type ColorFunc func() string

// RandomHexColor returns a random #rrggbb color.
func RandomHexColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}

// Process sorts polygons by ToBreak ascending, assigns palette colors in that
// order (smallest zone gets the first color), and returns them reversed so the
// largest zone is drawn first and the smallest ends up on top.
func Process(polys []naservice.Polygon, palette []string, fallback ColorFunc) []Zone {
	if len(polys) == 0 {
		return nil
	}
	if fallback == nil {
		fallback = RandomHexColor
	}
	sorted := append([]naservice.Polygon(nil), polys...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ToBreak < sorted[j].ToBreak })

	out := make([]Zone, len(sorted))
	for i, p := range sorted {
		var color string
		if i < len(palette) {
			color = palette[i]
		} else {
			color = fallback()
		}
		out[i] = Zone{
			ID:        strconv.Itoa(i),
			FromBreak: p.FromBreak,
			ToBreak:   p.ToBreak,
			Color:     color,
			Label:     Label(p.FromBreak, p.ToBreak),
			Geometry:  p.Geometry,
		}
	}
	reverse(out)
	return out
}

// Label formats a zone's break range.
func Label(from, to float64) string {
	return fmt.Sprintf("%s - %s min", formatBreak(from), formatBreak(to))
}

func formatBreak(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Recolor applies a new palette to zones in draw order without re-solving.
// The smallest zone (last in draw order) keeps taking the first color.
func Recolor(zones []Zone, palette []string, fallback ColorFunc) []Zone {
	if len(zones) == 0 {
		return nil
	}
	if fallback == nil {
		fallback = RandomHexColor
	}
	out := append([]Zone(nil), zones...)
	for i := range out {
		rank := len(out) - 1 - i
		if rank < len(palette) {
			out[i].Color = palette[rank]
		} else {
			out[i].Color = fallback()
		}
	}
	return out
}

// FeatureCollection renders zones in draw order for the display.
func FeatureCollection(zones []Zone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, z := range zones {
		f := geojson.NewFeature(z.Geometry)
		f.ID = z.ID
		f.Properties["fromBreak"] = z.FromBreak
		f.Properties["toBreak"] = z.ToBreak
		f.Properties["name"] = z.Label
		f.Properties["fill"] = z.Color
		fc.Append(f)
	}
	return fc
}

// Layer answers hit tests against zones. The topmost (last drawn) zone that
// contains the pointer wins.
type Layer struct {
	zones []Zone
}

// NewLayer captures zones for hit testing.
func NewLayer(zones []Zone) *Layer {
	return &Layer{zones: append([]Zone(nil), zones...)}
}

// HitTest implements hittest.Target.
func (l *Layer) HitTest(ctx context.Context, ev mapview.Event) (hittest.Hit, bool, error) {
	for i := len(l.zones) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return hittest.Hit{}, false, err
		}
		z := l.zones[i]
		if planar.MultiPolygonContains(z.Geometry, ev.World) {
			return hittest.Hit{FeatureID: z.ID, Label: z.Label}, true, nil
		}
	}
	return hittest.Hit{}, false, nil
}

func reverse(zs []Zone) {
	for i, j := 0, len(zs)-1; i < j; i, j = i+1, j-1 {
		zs[i], zs[j] = zs[j], zs[i]
	}
}
