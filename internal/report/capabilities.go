package report

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type Capabilities struct {
	App     string   `json:"app"`
	Layouts []Layout `json:"layouts"`
	Formats []string `json:"formats"`
}

type Layout struct {
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes"`
}

type Attribute struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	ClientInfo *ClientInfo `json:"clientInfo,omitempty"`
}

// ClientInfo describes a map attribute: its size in layout pixels (72 dpi)
// and the resolutions it prints at.
type ClientInfo struct {
	Width          float64   `json:"width"`
	Height         float64   `json:"height"`
	DPISuggestions []float64 `json:"dpiSuggestions"`
	MaxDPI         float64   `json:"maxDPI"`
	Scales         []float64 `json:"scales,omitempty"`
}

// Layout returns the layout called name.
func (c Capabilities) Layout(name string) (Layout, bool) {
	for _, l := range c.Layouts {
		if l.Name == name {
			return l, true
		}
	}
	return Layout{}, false
}

// MapInfo returns the client info of the layout's map attribute.
func (l Layout) MapInfo() (ClientInfo, bool) {
	for _, a := range l.Attributes {
		if a.Type == "MapAttributeValues" && a.ClientInfo != nil {
			return *a.ClientInfo, true
		}
	}
	for _, a := range l.Attributes {
		if a.Name == "map" && a.ClientInfo != nil {
			return *a.ClientInfo, true
		}
	}
	return ClientInfo{}, false
}

// Capabilities lists the layouts and output formats of the application.
func (c *Client) Capabilities(ctx context.Context) (caps Capabilities, err error) {
	defer observe("capabilities", time.Now(), &err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.appURL("capabilities.json"), nil)
	if err != nil {
		return Capabilities{}, fmt.Errorf("build capabilities request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.doJSON(req, &caps); err != nil {
		return Capabilities{}, fmt.Errorf("capabilities: %w", err)
	}
	return caps, nil
}
