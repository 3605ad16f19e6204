// Package config holds the validated settings a service-area widget reads.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-servicearea/internal/apperr"
)

// Search precedence values for picking a facility out of multi-source results.
const (
	PrecedenceFirst = "first"
	PrecedenceLast  = "last"
)

// Settings is the configuration surface of one widget.
type Settings struct {
	ServiceAreaURL   string   `yaml:"serviceAreaUrl" json:"serviceAreaUrl" required:"true" doc:"Network-analysis service area layer URL" example:"https://example.com/arcgis/rest/services/Transit/NAServer/ServiceArea"`
	GeocodeURLs      []string `yaml:"geocodeUrls,omitempty" json:"geocodeUrls,omitempty" doc:"Geocode server URLs, searched in order"`
	Colors           []string `yaml:"colors" json:"colors" doc:"Zone fill colors, smallest zone first"`
	FacilityColor    string   `yaml:"facilityColor" json:"facilityColor" doc:"Facility marker color (CSS)" example:"#1f6fb2"`
	Interval         int      `yaml:"interval" json:"interval" minimum:"1" doc:"Initial travel time per zone (minutes)"`
	IntervalMin      int      `yaml:"intervalMin" json:"intervalMin" minimum:"1"`
	IntervalMax      int      `yaml:"intervalMax" json:"intervalMax" minimum:"1"`
	IntervalStep     int      `yaml:"intervalStep" json:"intervalStep" minimum:"1"`
	Repetition       int      `yaml:"repetition" json:"repetition" minimum:"1" doc:"Initial number of zones"`
	RepetitionMin    int      `yaml:"repetitionMin" json:"repetitionMin" minimum:"1"`
	RepetitionMax    int      `yaml:"repetitionMax" json:"repetitionMax" minimum:"1"`
	MaxTravelTime    int      `yaml:"maxTravelTime" json:"maxTravelTime" minimum:"1" doc:"Ceiling for interval x repetition (minutes)"`
	DayOfWeek        int      `yaml:"dayOfWeek" json:"dayOfWeek" minimum:"0" maximum:"6" doc:"Default weekday, 0 = Monday"`
	SearchPrecedence string   `yaml:"searchPrecedence,omitempty" json:"searchPrecedence,omitempty" enum:"first,last" doc:"Which search candidate wins"`
	ExcludedSources  []string `yaml:"excludedSources,omitempty" json:"excludedSources,omitempty" doc:"Network sources excluded from polygons"`
	TrimDistance     float64  `yaml:"trimDistance" json:"trimDistance" minimum:"0" doc:"Outer polygon trim distance (meters)"`
	Timezone         string   `yaml:"timezone,omitempty" json:"timezone,omitempty" doc:"IANA zone for time of day" example:"Europe/Prague"`
}

// Default returns the settings the widget ships with.
func Default() Settings {
	return Settings{
		Colors:           []string{"#ffffb2", "#fecc5c", "#fd8d3c", "#f03b20", "#bd0026", "#800026"},
		FacilityColor:    "#1f6fb2",
		Interval:         10,
		IntervalMin:      5,
		IntervalMax:      60,
		IntervalStep:     5,
		Repetition:       3,
		RepetitionMin:    1,
		RepetitionMax:    6,
		MaxTravelTime:    120,
		DayOfWeek:        0,
		SearchPrecedence: PrecedenceFirst,
		ExcludedSources:  []string{"LineVariantElements"},
		TrimDistance:     200,
	}
}

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Validate checks the settings and returns a *apperr.ConfigurationError.
func (s Settings) Validate() error {
	if err := ValidateServiceURL(s.ServiceAreaURL); err != nil {
		return err
	}
	for _, u := range s.GeocodeURLs {
		if _, err := parseHTTPURL(u); err != nil {
			return &apperr.ConfigurationError{Field: "geocodeUrls", Reason: err.Error()}
		}
	}
	for _, c := range append([]string{s.FacilityColor}, s.Colors...) {
		if !colorPattern.MatchString(c) {
			return &apperr.ConfigurationError{Field: "colors", Reason: fmt.Sprintf("invalid color %q", c)}
		}
	}
	switch {
	case s.IntervalStep <= 0:
		return &apperr.ConfigurationError{Field: "intervalStep", Reason: "must be positive"}
	case s.IntervalMin <= 0 || s.IntervalMin > s.IntervalMax:
		return &apperr.ConfigurationError{Field: "intervalMin", Reason: "must be positive and not above intervalMax"}
	case s.RepetitionMin < 1 || s.RepetitionMin > s.RepetitionMax:
		return &apperr.ConfigurationError{Field: "repetitionMin", Reason: "must be at least 1 and not above repetitionMax"}
	case s.MaxTravelTime < s.IntervalMin*s.RepetitionMin:
		return &apperr.ConfigurationError{Field: "maxTravelTime", Reason: "must allow repetitionMin zones of intervalMin"}
	case s.Interval < s.IntervalMin || s.Interval > s.IntervalMax:
		return &apperr.ConfigurationError{Field: "interval", Reason: "outside [intervalMin, intervalMax]"}
	case s.Repetition < s.RepetitionMin || s.Repetition > s.RepetitionMax:
		return &apperr.ConfigurationError{Field: "repetition", Reason: "outside [repetitionMin, repetitionMax]"}
	case s.DayOfWeek < 0 || s.DayOfWeek > 6:
		return &apperr.ConfigurationError{Field: "dayOfWeek", Reason: "must be 0..6"}
	case s.TrimDistance < 0:
		return &apperr.ConfigurationError{Field: "trimDistance", Reason: "must not be negative"}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return &apperr.ConfigurationError{Field: "timezone", Reason: err.Error()}
		}
	}
	switch s.SearchPrecedence {
	case "", PrecedenceFirst, PrecedenceLast:
	default:
		return &apperr.ConfigurationError{Field: "searchPrecedence", Reason: "must be first or last"}
	}
	return nil
}

// ValidateServiceURL reports a malformed service area URL.
func ValidateServiceURL(raw string) error {
	if raw == "" {
		return &apperr.ConfigurationError{Field: "serviceAreaUrl", Reason: "check the service area URL"}
	}
	if _, err := parseHTTPURL(raw); err != nil {
		return &apperr.ConfigurationError{Field: "serviceAreaUrl", Reason: "check the service area URL"}
	}
	return nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("not an http(s) URL: %q", raw)
	}
	return u, nil
}

// Location resolves Timezone, falling back to the local zone.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads settings from a YAML file layered over Default.
// A missing file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

// Save writes settings as YAML.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
