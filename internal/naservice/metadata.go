// Package naservice is the client for the network-analysis service area
// layer: metadata fetch and solve.
package naservice

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/joeblew999/plat-servicearea/internal/arcgis"
)

// ServiceAreaLayerType is the only layer kind the widget can solve against.
const ServiceAreaLayerType = "esriNAServerServiceAreaLayer"

// ErrWrongLayerType reports metadata that is not a service area layer.
var ErrWrongLayerType = errors.New("Incorrect Service Area URL")

// TravelMode is one entry of supportedTravelModes. Raw keeps the full JSON
// object so it can be sent back verbatim with a solve.
type TravelMode struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Raw         json.RawMessage `json:"-"`
}

func (m *TravelMode) UnmarshalJSON(data []byte) error {
	type plain TravelMode
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = TravelMode(p)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Metadata is the validated description of a service area layer.
type Metadata struct {
	URL                  string       `json:"url"`
	LayerName            string       `json:"layerName"`
	LayerType            string       `json:"layerType"`
	Impedance            string       `json:"impedance"`
	DefaultTravelMode    string       `json:"defaultTravelMode"`
	SupportedTravelModes []TravelMode `json:"supportedTravelModes"`
}

// Validate checks the fields a solve depends on.
func (m *Metadata) Validate() error {
	if m == nil {
		return errors.New("service metadata not loaded")
	}
	if m.LayerType != ServiceAreaLayerType {
		return ErrWrongLayerType
	}
	if m.Impedance == "" {
		return errors.New("service metadata has no impedance")
	}
	if m.DefaultTravelMode == "" && len(m.SupportedTravelModes) == 0 {
		return errors.New("service metadata has no travel mode")
	}
	return nil
}

// DataUpdate parses the date the network dataset was built. The first travel
// mode description carries it at characters 2..12 as YYYY-MM-DD.
func (m *Metadata) DataUpdate() (time.Time, bool) {
	if m == nil || len(m.SupportedTravelModes) == 0 {
		return time.Time{}, false
	}
	desc := m.SupportedTravelModes[0].Description
	if len(desc) < 12 {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, desc[2:12])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// TravelMode returns the travel mode to send with a solve: the supported
// mode whose id or name matches DefaultTravelMode, else the first one.
func (m *Metadata) TravelMode() (TravelMode, bool) {
	for _, tm := range m.SupportedTravelModes {
		if tm.ID == m.DefaultTravelMode || tm.Name == m.DefaultTravelMode {
			return tm, true
		}
	}
	if m.DefaultTravelMode == "" && len(m.SupportedTravelModes) > 0 {
		return m.SupportedTravelModes[0], true
	}
	return TravelMode{}, false
}

// Client talks to service area layers.
type Client struct {
	api *arcgis.Client
}

// NewClient returns a client over the shared ArcGIS transport.
func NewClient(api *arcgis.Client) *Client {
	return &Client{api: api}
}

// FetchMetadata loads and validates the layer description at url.
func (c *Client) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	var md Metadata
	if err := c.api.Get(ctx, url, nil, &md); err != nil {
		return nil, err
	}
	md.URL = url
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return &md, nil
}
