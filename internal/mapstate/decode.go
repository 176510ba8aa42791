package mapstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

var ErrInvalidDocument = errors.New("invalid map document")

// DecodeOptions configure sources created while decoding a document.
type DecodeOptions struct {
	// Client fetches remote GeoJSON sources.
	Client      *http.Client
	LoadTimeout time.Duration
}

type document struct {
	View   docView    `json:"view"`
	Layers []docLayer `json:"layers"`
}

type docView struct {
	Center       []float64 `json:"center"`
	CenterLonLat []float64 `json:"centerLonLat"`
	Resolution   float64   `json:"resolution"`
	Zoom         *float64  `json:"zoom"`
	Rotation     float64   `json:"rotation"`
	Projection   string    `json:"projection"`
}

type docLayer struct {
	Type          string     `json:"type"`
	Name          string     `json:"name"`
	Opacity       *float64   `json:"opacity"`
	Visible       *bool      `json:"visible"`
	Source        *docSource `json:"source"`
	Style         *docStyle  `json:"style"`
	LabelProperty string     `json:"labelProperty"`
	Layers        []docLayer `json:"layers"`
}

type docSource struct {
	Type            string            `json:"type"`
	URL             string            `json:"url"`
	Params          map[string]string `json:"params"`
	ServerType      string            `json:"serverType"`
	Layer           string            `json:"layer"`
	Style           string            `json:"style"`
	MatrixSet       string            `json:"matrixSet"`
	Format          string            `json:"format"`
	RequestEncoding string            `json:"requestEncoding"`
	Projection      string            `json:"projection"`
	Dimensions      map[string]string `json:"dimensions"`
	Grid            *docGrid          `json:"tileGrid"`
	Extent          []float64         `json:"extent"`
	Data            json.RawMessage   `json:"data"`
}

type docGrid struct {
	Origin      []float64 `json:"origin"`
	Resolutions []float64 `json:"resolutions"`
	MatrixIDs   []string  `json:"matrixIds"`
	TileSize    []int     `json:"tileSize"`
	Extent      []float64 `json:"extent"`
}

type docStyle struct {
	Fill   *Fill   `json:"fill"`
	Stroke *Stroke `json:"stroke"`
	Marker *Marker `json:"marker"`
	Icon   *Icon   `json:"icon"`
	Text   *Text   `json:"text"`
}

// DecodeDocument reads a JSON map document:
//
//	{"view": {...}, "layers": [{"type": "tile", "source": {"type": "osm"}}, ...]}
//
// Layers are listed bottom to top, like the map draws them.
func DecodeDocument(r io.Reader, opts DecodeOptions) (*Map, error) {
	var doc document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	view, err := doc.View.toView()
	if err != nil {
		return nil, err
	}
	layers, err := decodeLayers(doc.Layers, opts, "layers")
	if err != nil {
		return nil, err
	}
	return &Map{View: view, Layers: layers}, nil
}

func (v docView) toView() (View, error) {
	proj := v.Projection
	if strings.TrimSpace(proj) == "" {
		proj = EPSG3857
	}
	canon, known := CanonicalProjection(proj)
	out := View{Rotation: v.Rotation, Projection: canon}

	switch {
	case len(v.Center) == 2:
		out.Center = orb.Point{v.Center[0], v.Center[1]}
	case len(v.CenterLonLat) == 2:
		ll := orb.Point{v.CenterLonLat[0], v.CenterLonLat[1]}
		switch {
		case canon == EPSG4326:
			out.Center = ll
		case canon == EPSG3857:
			out.Center = project.WGS84.ToMercator(ll)
		default:
			return View{}, fmt.Errorf("%w: view: centerLonLat needs a known projection, got %q", ErrInvalidDocument, proj)
		}
	default:
		return View{}, fmt.Errorf("%w: view: center or centerLonLat must have two values", ErrInvalidDocument)
	}

	switch {
	case v.Resolution > 0:
		out.Resolution = v.Resolution
	case v.Zoom != nil && known && canon == EPSG3857:
		out.Resolution = ResolutionForZoom(*v.Zoom)
	default:
		return View{}, fmt.Errorf("%w: view: resolution required (zoom only for web mercator)", ErrInvalidDocument)
	}
	return out, nil
}

func decodeLayers(in []docLayer, opts DecodeOptions, path string) ([]Layer, error) {
	out := make([]Layer, 0, len(in))
	for i, dl := range in {
		p := fmt.Sprintf("%s[%d]", path, i)
		l, err := dl.toLayer(opts, p)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (dl docLayer) props() LayerProps {
	p := LayerProps{Name: dl.Name, Opacity: dl.Opacity}
	if dl.Visible != nil && !*dl.Visible {
		p.Hidden = true
	}
	return p
}

func (dl docLayer) toLayer(opts DecodeOptions, path string) (Layer, error) {
	switch strings.ToLower(dl.Type) {
	case "group":
		children, err := decodeLayers(dl.Layers, opts, path+".layers")
		if err != nil {
			return nil, err
		}
		return &GroupLayer{LayerProps: dl.props(), Layers: children}, nil
	case "tile":
		src, err := dl.Source.tileSource(path)
		if err != nil {
			return nil, err
		}
		return &TileLayer{LayerProps: dl.props(), Source: src}, nil
	case "image":
		src, err := dl.Source.imageSource(path)
		if err != nil {
			return nil, err
		}
		return &ImageLayer{LayerProps: dl.props(), Source: src}, nil
	case "vector":
		src, err := dl.Source.featureSource(opts, path)
		if err != nil {
			return nil, err
		}
		l := &VectorLayer{LayerProps: dl.props(), Source: src}
		if dl.Style != nil {
			st, err := dl.Style.toStyle(path)
			if err != nil {
				return nil, err
			}
			if dl.LabelProperty != "" {
				l.Style = LabelFromProperty{Base: st, Property: dl.LabelProperty}
			} else {
				l.Style = st
			}
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown layer type %q", ErrInvalidDocument, path, dl.Type)
	}
}

func (s *docSource) tileSource(path string) (TileSource, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %s: missing source", ErrInvalidDocument, path)
	}
	switch strings.ToLower(s.Type) {
	case "osm":
		return &OSMSource{URL: s.URL}, nil
	case "xyz":
		if s.URL == "" {
			return nil, fmt.Errorf("%w: %s: xyz source needs url", ErrInvalidDocument, path)
		}
		return &XYZSource{URL: s.URL}, nil
	case "wms":
		return s.wms(path)
	case "wmts":
		return s.wmts(path)
	default:
		return nil, fmt.Errorf("%w: %s: unknown tile source %q", ErrInvalidDocument, path, s.Type)
	}
}

func (s *docSource) imageSource(path string) (ImageSource, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %s: missing source", ErrInvalidDocument, path)
	}
	switch strings.ToLower(s.Type) {
	case "wms":
		return s.wms(path)
	case "static":
		ext, err := bound(s.Extent)
		if err != nil || s.URL == "" {
			return nil, fmt.Errorf("%w: %s: static source needs url and extent", ErrInvalidDocument, path)
		}
		return &StaticImageSource{URL: s.URL, Extent: ext}, nil
	default:
		return nil, fmt.Errorf("%w: %s: unknown image source %q", ErrInvalidDocument, path, s.Type)
	}
}

func (s *docSource) wms(path string) (*WMSSource, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("%w: %s: wms source needs url", ErrInvalidDocument, path)
	}
	return &WMSSource{URL: s.URL, Params: s.Params, ServerType: s.ServerType}, nil
}

func (s *docSource) wmts(path string) (*WMTSSource, error) {
	if s.URL == "" || s.Layer == "" || s.Grid == nil {
		return nil, fmt.Errorf("%w: %s: wmts source needs url, layer and tileGrid", ErrInvalidDocument, path)
	}
	g := s.Grid
	if len(g.Origin) != 2 || len(g.Resolutions) == 0 {
		return nil, fmt.Errorf("%w: %s: tileGrid needs origin and resolutions", ErrInvalidDocument, path)
	}
	grid := TileGrid{
		Origin:      orb.Point{g.Origin[0], g.Origin[1]},
		Resolutions: g.Resolutions,
		MatrixIDs:   g.MatrixIDs,
		TileSize:    [2]int{256, 256},
	}
	switch len(g.TileSize) {
	case 1:
		grid.TileSize = [2]int{g.TileSize[0], g.TileSize[0]}
	case 2:
		grid.TileSize = [2]int{g.TileSize[0], g.TileSize[1]}
	}
	if len(g.Extent) > 0 {
		ext, err := bound(g.Extent)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: tileGrid extent: %v", ErrInvalidDocument, path, err)
		}
		grid.Extent = ext
	}
	return &WMTSSource{
		URL:             s.URL,
		Layer:           s.Layer,
		Style:           s.Style,
		MatrixSet:       s.MatrixSet,
		Format:          s.Format,
		RequestEncoding: s.RequestEncoding,
		Projection:      s.Projection,
		Dimensions:      s.Dimensions,
		Grid:            grid,
	}, nil
}

func (s *docSource) featureSource(opts DecodeOptions, path string) (FeatureSource, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: %s: missing source", ErrInvalidDocument, path)
	}
	if strings.EqualFold(s.Type, "wfs") {
		u, err := WFSGetFeatureURL(s.URL, s.Layer, s.Projection, s.Params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &RemoteGeoJSONSource{
			URL:         u,
			Proj:        s.Projection,
			Client:      opts.Client,
			LoadTimeout: opts.LoadTimeout,
		}, nil
	}
	if !strings.EqualFold(s.Type, "geojson") {
		return nil, fmt.Errorf("%w: %s: unknown vector source %q", ErrInvalidDocument, path, s.Type)
	}
	data := bytes.TrimSpace(s.Data)
	switch {
	case len(data) > 0 && !bytes.Equal(data, []byte("null")):
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: data: %v", ErrInvalidDocument, path, err)
		}
		return &StaticSource{Items: FeaturesFromCollection(fc), Proj: s.Projection}, nil
	case s.URL != "":
		return &RemoteGeoJSONSource{
			URL:         s.URL,
			Proj:        s.Projection,
			Client:      opts.Client,
			LoadTimeout: opts.LoadTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s: geojson source needs data or url", ErrInvalidDocument, path)
	}
}

func (ds *docStyle) toStyle(path string) (*Style, error) {
	if ds.Marker != nil && ds.Icon != nil {
		return nil, fmt.Errorf("%w: %s: style has both marker and icon", ErrInvalidDocument, path)
	}
	st := &Style{Fill: ds.Fill, Stroke: ds.Stroke, Text: ds.Text}
	switch {
	case ds.Marker != nil:
		st.Image = ds.Marker
	case ds.Icon != nil:
		st.Image = ds.Icon
	}
	return st, nil
}

func bound(v []float64) (orb.Bound, error) {
	if len(v) != 4 {
		return orb.Bound{}, errors.New("extent must be [minx, miny, maxx, maxy]")
	}
	if v[2] < v[0] || v[3] < v[1] {
		return orb.Bound{}, errors.New("extent max must not be below min")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
