package mapview

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Recorder is a Display that keeps the last command of each kind. It backs
// the headless CLI and tests.
type Recorder struct {
	mu         sync.Mutex
	layers     map[string]*geojson.FeatureCollection
	highlights map[string]int
	cursor     string
	tooltip    Tooltip
	center     orb.Point
	tooltips   int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		layers:     make(map[string]*geojson.FeatureCollection),
		highlights: make(map[string]int),
	}
}

func (r *Recorder) SetLayer(name string, fc *geojson.FeatureCollection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers[name] = fc
}

func (r *Recorder) RemoveLayer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.layers, name)
}

func (r *Recorder) Highlight(layer, featureID string) func() {
	key := layer + "/" + featureID
	r.mu.Lock()
	r.highlights[key]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.highlights[key]--; r.highlights[key] <= 0 {
				delete(r.highlights, key)
			}
		})
	}
}

func (r *Recorder) SetCursor(cursor string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = cursor
}

func (r *Recorder) ShowTooltip(t Tooltip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tooltip = t
	r.tooltips++
}

func (r *Recorder) GoTo(center orb.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center = center
}

// Layer returns the features last set on name, or nil.
func (r *Recorder) Layer(name string) *geojson.FeatureCollection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layers[name]
}

// Highlighted reports whether a feature currently carries a highlight.
func (r *Recorder) Highlighted(layer, featureID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highlights[layer+"/"+featureID] > 0
}

// HighlightCount reports the number of live highlights across all layers.
func (r *Recorder) HighlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.highlights {
		n += c
	}
	return n
}

// Cursor returns the last cursor set.
func (r *Recorder) Cursor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Tooltip returns the last tooltip state.
func (r *Recorder) Tooltip() Tooltip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tooltip
}

// TooltipUpdates counts ShowTooltip calls.
func (r *Recorder) TooltipUpdates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tooltips
}

// Center returns the last GoTo target.
func (r *Recorder) Center() orb.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.center
}
