package naservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-servicearea/internal/params"
)

// SolveRequest is everything one solve needs besides the layer metadata.
type SolveRequest struct {
	Facility        orb.Point
	FacilityLabel   string
	Breaks          []int
	TravelDirection params.TravelDirection
	TimeOfDay       time.Time
	ExcludedSources []string
	TrimDistance    float64
}

// Polygon is one service area polygon as returned by the solver.
type Polygon struct {
	FromBreak float64
	ToBreak   float64
	Geometry  orb.MultiPolygon
}

type solveResponse struct {
	SAPolygons *struct {
		Features []struct {
			Attributes struct {
				FromBreak float64 `json:"FromBreak"`
				ToBreak   float64 `json:"ToBreak"`
			} `json:"attributes"`
			Geometry struct {
				Rings [][][2]float64 `json:"rings"`
			} `json:"geometry"`
		} `json:"features"`
	} `json:"saPolygons"`
}

// Form renders the request as solveServiceArea form parameters.
func (r SolveRequest) Form(md *Metadata) (url.Values, error) {
	facilities, err := json.Marshal(map[string]any{
		"features": []any{map[string]any{
			"geometry": map[string]any{
				"x":                r.Facility.X(),
				"y":                r.Facility.Y(),
				"spatialReference": map[string]int{"wkid": 4326},
			},
			"attributes": map[string]any{"Name": r.FacilityLabel},
		}},
	})
	if err != nil {
		return nil, err
	}

	breaks := make([]string, len(r.Breaks))
	for i, b := range r.Breaks {
		breaks[i] = strconv.Itoa(b)
	}

	direction := "esriNATravelDirectionFromFacility"
	if r.TravelDirection == params.ToFacility {
		direction = "esriNATravelDirectionToFacility"
	}

	form := url.Values{}
	form.Set("facilities", string(facilities))
	form.Set("defaultBreaks", strings.Join(breaks, ","))
	form.Set("travelDirection", direction)
	form.Set("impedanceAttributeName", md.Impedance)
	if tm, ok := md.TravelMode(); ok && len(tm.Raw) > 0 {
		form.Set("travelMode", string(tm.Raw))
	} else if md.DefaultTravelMode != "" {
		form.Set("travelMode", md.DefaultTravelMode)
	}
	if !r.TimeOfDay.IsZero() {
		form.Set("timeOfDay", strconv.FormatInt(r.TimeOfDay.UnixMilli(), 10))
		form.Set("timeOfDayIsUTC", "false")
	}
	form.Set("outSR", "4326")
	form.Set("outputGeometryPrecision", "0")
	form.Set("outputGeometryPrecisionUnits", "esriMeters")
	form.Set("mergeSimilarPolygonRanges", "false")
	form.Set("useHierarchy", "false")
	form.Set("overlapPolygons", "true")
	form.Set("outputPolygons", "esriNAOutputPolygonSimplified")
	form.Set("splitPolygonsAtBreaks", "true")
	if len(r.ExcludedSources) > 0 {
		form.Set("excludeSourcesFromPolygons", strings.Join(r.ExcludedSources, ","))
	}
	form.Set("trimOuterPolygon", "true")
	form.Set("trimPolygonDistance", strconv.FormatFloat(r.TrimDistance, 'f', -1, 64))
	form.Set("trimPolygonDistanceUnits", "esriMeters")
	form.Set("returnFacilities", "false")
	form.Set("returnPolygons", "true")
	return form, nil
}

// Solve runs solveServiceArea. The layer kind is checked before anything is
// sent; a nil slice with a nil error means the solver returned no polygons.
func (c *Client) Solve(ctx context.Context, md *Metadata, req SolveRequest) ([]Polygon, error) {
	if err := md.Validate(); err != nil {
		return nil, err
	}
	form, err := req.Form(md)
	if err != nil {
		return nil, fmt.Errorf("encode solve: %w", err)
	}

	var resp solveResponse
	if err := c.api.PostForm(ctx, strings.TrimRight(md.URL, "/")+"/solveServiceArea", form, &resp); err != nil {
		return nil, err
	}
	if resp.SAPolygons == nil {
		return nil, nil
	}
	var out []Polygon
	for _, f := range resp.SAPolygons.Features {
		rings := make([]orb.Ring, 0, len(f.Geometry.Rings))
		for _, coords := range f.Geometry.Rings {
			ring := make(orb.Ring, len(coords))
			for i, c := range coords {
				ring[i] = orb.Point{c[0], c[1]}
			}
			rings = append(rings, ring)
		}
		mp := GroupRings(rings)
		if len(mp) == 0 {
			continue
		}
		out = append(out, Polygon{
			FromBreak: f.Attributes.FromBreak,
			ToBreak:   f.Attributes.ToBreak,
			Geometry:  mp,
		})
	}
	return out, nil
}

// GroupRings turns Esri polygon rings into polygons: clockwise rings are
// exteriors, counter-clockwise rings are holes of the exterior containing them.
func GroupRings(rings []orb.Ring) orb.MultiPolygon {
	var mp orb.MultiPolygon
	var holes []orb.Ring
	for _, r := range rings {
		if len(r) < 4 {
			continue
		}
		if r.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{r})
		} else {
			holes = append(holes, r)
		}
	}
	for _, h := range holes {
		placed := false
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				placed = true
				break
			}
		}
		if !placed {
			// A lone counter-clockwise ring is an exterior drawn the other way.
			mp = append(mp, orb.Polygon{h})
		}
	}
	return mp
}
