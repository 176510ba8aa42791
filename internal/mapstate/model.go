// Package mapstate is the read-only picture of an interactive map handed to
// the encoder: the view, the layer stack, sources, features and styles.
// Nothing in the encoder writes into these values.
package mapstate

import (
	"context"
	"math"

	"github.com/paulmach/orb"
)

const (
	EPSG3857 = "EPSG:3857"
	EPSG4326 = "EPSG:4326"
)

// maxResolution is the resolution of zoom level 0 on the web mercator grid.
const maxResolution = 2 * math.Pi * orb.EarthRadius / 256

// ResolutionForZoom returns the web mercator resolution in meters per pixel.
func ResolutionForZoom(z float64) float64 {
	return maxResolution / math.Pow(2, z)
}

// View is a snapshot of the map viewport. Rotation is in radians.
type View struct {
	Center     orb.Point
	Resolution float64
	Rotation   float64
	Projection string
}

// Map is a view plus its layers ordered bottom to top.
type Map struct {
	View   View
	Layers []Layer
}

// LayerProps are the properties shared by all layer kinds.
type LayerProps struct {
	Name string
	// nil means fully opaque
	Opacity *float64
	Hidden  bool
}

// OpacityOrDefault returns the layer opacity, 1 when unset.
func (p LayerProps) OpacityOrDefault() float64 {
	if p.Opacity == nil {
		return 1
	}
	return *p.Opacity
}

// Float returns a pointer to f, for optional numeric fields.
func Float(f float64) *float64 { return &f }

type Layer interface {
	Props() LayerProps
}

type TileLayer struct {
	LayerProps
	Source TileSource
}

func (l *TileLayer) Props() LayerProps { return l.LayerProps }

type ImageLayer struct {
	LayerProps
	Source ImageSource
}

func (l *ImageLayer) Props() LayerProps { return l.LayerProps }

type VectorLayer struct {
	LayerProps
	Source FeatureSource
	// Style applies to features without their own style.
	Style Styler
}

func (l *VectorLayer) Props() LayerProps { return l.LayerProps }

// GroupLayer holds child layers ordered bottom to top.
type GroupLayer struct {
	LayerProps
	Layers []Layer
}

func (l *GroupLayer) Props() LayerProps { return l.LayerProps }

type TileSource interface {
	tileSource()
}

type ImageSource interface {
	imageSource()
}

// XYZSource is a templated tile URL such as https://tile.openstreetmap.org/{z}/{x}/{y}.png.
type XYZSource struct {
	URL string
}

func (*XYZSource) tileSource() {}

// OSMSource is the OpenStreetMap standard tile server.
type OSMSource struct {
	// empty means DefaultOSMURL
	URL string
}

const DefaultOSMURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"

func (*OSMSource) tileSource() {}

// TileGrid describes the WMTS matrix set of a source.
type TileGrid struct {
	Origin      orb.Point
	Resolutions []float64
	MatrixIDs   []string
	TileSize    [2]int
	// Extent bounds the grid; used to compute matrix sizes.
	Extent orb.Bound
}

type WMTSSource struct {
	URL             string
	Layer           string
	Style           string
	MatrixSet       string
	Format          string
	RequestEncoding string
	Projection      string
	Dimensions      map[string]string
	Grid            TileGrid
}

func (*WMTSSource) tileSource() {}

// WMSSource serves both tiled and single image WMS layers.
type WMSSource struct {
	URL        string
	Params     map[string]string
	ServerType string
}

func (*WMSSource) tileSource()  {}
func (*WMSSource) imageSource() {}

// StaticImageSource is one image covering Extent in the view projection.
type StaticImageSource struct {
	URL    string
	Extent orb.Bound
}

func (*StaticImageSource) imageSource() {}

// FeatureSource provides the features of a vector layer. Features may block
// until a pending load completes.
type FeatureSource interface {
	Features(ctx context.Context) ([]*Feature, error)
	// Projection of the feature coordinates; empty means the view projection.
	Projection() string
}

// StaticSource is an in-memory feature set.
type StaticSource struct {
	Items []*Feature
	Proj  string
}

func (s *StaticSource) Features(context.Context) ([]*Feature, error) { return s.Items, nil }
func (s *StaticSource) Projection() string                           { return s.Proj }

// Geometry is any orb geometry or a Circle.
type Geometry interface {
	Bound() orb.Bound
}

// Circle has no GeoJSON counterpart; the encoder approximates it.
type Circle struct {
	Center orb.Point
	Radius float64
}

func (c Circle) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{c.Center[0] - c.Radius, c.Center[1] - c.Radius},
		Max: orb.Point{c.Center[0] + c.Radius, c.Center[1] + c.Radius},
	}
}

type Feature struct {
	ID         any
	Geometry   Geometry
	Properties map[string]any
	// nil falls back to the layer style
	Style Styler
}

// Get returns a property value.
func (f *Feature) Get(key string) any {
	if f == nil || f.Properties == nil {
		return nil
	}
	return f.Properties[key]
}
