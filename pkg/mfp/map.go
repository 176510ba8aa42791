// Package mfp defines the JSON documents exchanged with a MapFish Print service.
package mfp

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// Map is the "map" attribute of a print request.
type Map struct {
	Center     [2]float64 `json:"center"`
	Scale      float64    `json:"scale"`
	Rotation   float64    `json:"rotation"`
	Projection string     `json:"projection"`
	DPI        float64    `json:"dpi"`
	Layers     []Layer    `json:"layers"`
}

// Layer is one entry of Map.Layers. The concrete types carry their own
// "type" discriminator when marshalled.
type Layer interface {
	LayerType() string
}

// URLLayer is implemented by layers fetched by the print service from a base URL.
type URLLayer interface {
	Layer
	URL() string
	SetURL(u string)
}

const (
	TypeOSM     = "osm"
	TypeWMTS    = "wmts"
	TypeWMS     = "wms"
	TypeImage   = "image"
	TypeGeoJSON = "geojson"
)

// OSMLayer is an XYZ tile layer; BaseURL keeps the {x}/{y}/{z} template verbatim.
type OSMLayer struct {
	BaseURL        string            `json:"baseURL"`
	ImageExtension string            `json:"imageExtension,omitempty"`
	CustomParams   map[string]string `json:"customParams,omitempty"`
	Opacity        float64           `json:"opacity"`
	Name           string            `json:"name,omitempty"`
}

func (l *OSMLayer) LayerType() string { return TypeOSM }
func (l *OSMLayer) URL() string       { return l.BaseURL }
func (l *OSMLayer) SetURL(u string)   { l.BaseURL = u }

func (l *OSMLayer) MarshalJSON() ([]byte, error) {
	type alias OSMLayer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{TypeOSM, (*alias)(l)})
}

type WMTSMatrix struct {
	Identifier       string     `json:"identifier"`
	ScaleDenominator float64    `json:"scaleDenominator"`
	TopLeftCorner    [2]float64 `json:"topLeftCorner"`
	TileSize         [2]int     `json:"tileSize"`
	MatrixSize       [2]int     `json:"matrixSize"`
}

type WMTSLayer struct {
	BaseURL         string            `json:"baseURL"`
	Layer           string            `json:"layer"`
	Style           string            `json:"style"`
	MatrixSet       string            `json:"matrixSet"`
	RequestEncoding string            `json:"requestEncoding"`
	ImageFormat     string            `json:"imageFormat"`
	Dimensions      []string          `json:"dimensions,omitempty"`
	DimensionParams map[string]string `json:"dimensionParams,omitempty"`
	Matrices        []WMTSMatrix      `json:"matrices"`
	Opacity         float64           `json:"opacity"`
	Name            string            `json:"name,omitempty"`
}

func (l *WMTSLayer) LayerType() string { return TypeWMTS }
func (l *WMTSLayer) URL() string       { return l.BaseURL }
func (l *WMTSLayer) SetURL(u string)   { l.BaseURL = u }

func (l *WMTSLayer) MarshalJSON() ([]byte, error) {
	type alias WMTSLayer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{TypeWMTS, (*alias)(l)})
}

type WMSLayer struct {
	BaseURL        string            `json:"baseURL"`
	Layers         []string          `json:"layers"`
	Styles         []string          `json:"styles,omitempty"`
	ImageFormat    string            `json:"imageFormat"`
	CustomParams   map[string]string `json:"customParams,omitempty"`
	ServerType     string            `json:"serverType,omitempty"`
	UseNativeAngle bool              `json:"useNativeAngle,omitempty"`
	Opacity        float64           `json:"opacity"`
	Name           string            `json:"name,omitempty"`
}

func (l *WMSLayer) LayerType() string { return TypeWMS }
func (l *WMSLayer) URL() string       { return l.BaseURL }
func (l *WMSLayer) SetURL(u string)   { l.BaseURL = u }

func (l *WMSLayer) MarshalJSON() ([]byte, error) {
	type alias WMSLayer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{TypeWMS, (*alias)(l)})
}

// ImageLayer is a single georeferenced raster stretched over Extent.
type ImageLayer struct {
	BaseURL string     `json:"baseURL"`
	Extent  [4]float64 `json:"extent"`
	Opacity float64    `json:"opacity"`
	Name    string     `json:"name,omitempty"`
}

func (l *ImageLayer) LayerType() string { return TypeImage }
func (l *ImageLayer) URL() string       { return l.BaseURL }
func (l *ImageLayer) SetURL(u string)   { l.BaseURL = u }

func (l *ImageLayer) MarshalJSON() ([]byte, error) {
	type alias ImageLayer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{TypeImage, (*alias)(l)})
}

// GeoJSONLayer carries inline features and the rule based style joining them
// to their symbolizers.
type GeoJSONLayer struct {
	GeoJSON *geojson.FeatureCollection `json:"geoJson"`
	Style   *StyleDocument             `json:"style,omitempty"`
	Opacity float64                    `json:"opacity"`
	Name    string                     `json:"name,omitempty"`
}

func (l *GeoJSONLayer) LayerType() string { return TypeGeoJSON }

func (l *GeoJSONLayer) MarshalJSON() ([]byte, error) {
	type alias GeoJSONLayer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{TypeGeoJSON, (*alias)(l)})
}

// Spec is the body posted to the report endpoint.
type Spec struct {
	Layout     string         `json:"layout"`
	Format     string         `json:"format"`
	Attributes map[string]any `json:"attributes"`
}

// NewSpec wraps an encoded map into a print request. Extra attributes are
// copied; a "map" entry among them is replaced by m.
func NewSpec(layout, format string, m *Map, extra map[string]any) Spec {
	attrs := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		attrs[k] = v
	}
	attrs["map"] = m
	return Spec{Layout: layout, Format: format, Attributes: attrs}
}
