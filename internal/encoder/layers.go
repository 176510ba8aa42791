package encoder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/observability"
	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

const defaultImageFormat = "image/png"

// wmsReserved are request parameters the print service sets itself.
var wmsReserved = map[string]struct{}{
	"SERVICE": {}, "REQUEST": {}, "VERSION": {}, "WIDTH": {}, "HEIGHT": {},
	"BBOX": {}, "SRS": {}, "CRS": {},
}

// run is the state of one EncodeMap call.
type run struct {
	proj       string
	clip       orb.Bound
	customizer Customizer
	layers     []mfp.Layer
	skipped    int
}

// encodeLayer appends the entries of l, in stack order, to r.layers.
// parentOpacity is the product of the opacities of enclosing groups.
func (e *Encoder) encodeLayer(ctx context.Context, r *run, l mapstate.Layer, parentOpacity float64) error {
	if l == nil {
		return fmt.Errorf("%w: nil layer", ErrUnsupportedLayer)
	}
	props := l.Props()
	opacity := parentOpacity * props.OpacityOrDefault()
	if props.Hidden || opacity <= 0 || !r.customizer.FilterLayer(l) {
		r.skipped++
		return nil
	}

	var (
		entry mfp.Layer
		err   error
	)
	switch v := l.(type) {
	case *mapstate.GroupLayer:
		for _, child := range v.Layers {
			if err := e.encodeLayer(ctx, r, child, opacity); err != nil {
				return err
			}
		}
		return nil
	case *mapstate.TileLayer:
		entry, err = e.encodeTileLayer(r, v, opacity)
	case *mapstate.ImageLayer:
		entry, err = e.encodeImageLayer(v, opacity)
	case *mapstate.VectorLayer:
		entry, err = e.encodeVectorLayer(ctx, r, v, opacity)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedLayer, l)
	}
	if err != nil {
		if props.Name != "" {
			return fmt.Errorf("layer %q: %w", props.Name, err)
		}
		return err
	}

	entry = r.customizer.RewriteLayer(entry)
	if entry == nil {
		r.skipped++
		return nil
	}
	r.layers = append(r.layers, entry)
	observability.IncEncodedLayer(entry.LayerType())
	return nil
}

func (e *Encoder) encodeTileLayer(r *run, l *mapstate.TileLayer, opacity float64) (mfp.Layer, error) {
	switch src := l.Source.(type) {
	case *mapstate.OSMSource:
		u := src.URL
		if u == "" {
			u = mapstate.DefaultOSMURL
		}
		return &mfp.OSMLayer{BaseURL: u, Opacity: opacity, Name: l.Name}, nil
	case *mapstate.XYZSource:
		if strings.TrimSpace(src.URL) == "" {
			return nil, fmt.Errorf("%w: xyz source without url", ErrInvalidLayer)
		}
		return &mfp.OSMLayer{BaseURL: src.URL, Opacity: opacity, Name: l.Name}, nil
	case *mapstate.WMTSSource:
		return encodeWMTS(src, r.proj, opacity, l.Name)
	case *mapstate.WMSSource:
		return encodeWMS(src, opacity, l.Name)
	case nil:
		return nil, fmt.Errorf("%w: tile layer without source", ErrInvalidLayer)
	default:
		return nil, fmt.Errorf("%w: tile source %T", ErrUnsupportedLayer, src)
	}
}

func (e *Encoder) encodeImageLayer(l *mapstate.ImageLayer, opacity float64) (mfp.Layer, error) {
	switch src := l.Source.(type) {
	case *mapstate.WMSSource:
		return encodeWMS(src, opacity, l.Name)
	case *mapstate.StaticImageSource:
		if strings.TrimSpace(src.URL) == "" {
			return nil, fmt.Errorf("%w: image source without url", ErrInvalidLayer)
		}
		if src.Extent.IsZero() || src.Extent.IsEmpty() {
			return nil, fmt.Errorf("%w: image source with empty extent", ErrInvalidLayer)
		}
		b := src.Extent
		return &mfp.ImageLayer{
			BaseURL: src.URL,
			Extent:  [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
			Opacity: opacity,
			Name:    l.Name,
		}, nil
	case nil:
		return nil, fmt.Errorf("%w: image layer without source", ErrInvalidLayer)
	default:
		return nil, fmt.Errorf("%w: image source %T", ErrUnsupportedLayer, src)
	}
}

// encodeWMS splits the request parameters into the fields the print service
// knows; the rest travel as customParams.
func encodeWMS(src *mapstate.WMSSource, opacity float64, name string) (*mfp.WMSLayer, error) {
	if strings.TrimSpace(src.URL) == "" {
		return nil, fmt.Errorf("%w: wms source without url", ErrInvalidLayer)
	}
	out := &mfp.WMSLayer{
		BaseURL:        src.URL,
		ImageFormat:    defaultImageFormat,
		ServerType:     src.ServerType,
		UseNativeAngle: src.ServerType != "",
		Opacity:        opacity,
		Name:           name,
	}
	for k, v := range src.Params {
		switch uk := strings.ToUpper(k); uk {
		case "LAYERS":
			out.Layers = splitList(v)
		case "STYLES":
			out.Styles = strings.Split(v, ",")
		case "FORMAT":
			if v != "" {
				out.ImageFormat = v
			}
		default:
			if _, skip := wmsReserved[uk]; skip {
				continue
			}
			if out.CustomParams == nil {
				out.CustomParams = map[string]string{}
			}
			out.CustomParams[uk] = v
		}
	}
	if len(out.Layers) == 0 {
		return nil, fmt.Errorf("%w: wms source without LAYERS", ErrInvalidLayer)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// encodeVectorLayer waits for the source, reprojects and culls the features,
// then attaches the deduplicated style. A layer left with no features is
// still emitted so the print keeps its layer list.
func (e *Encoder) encodeVectorLayer(ctx context.Context, r *run, l *mapstate.VectorLayer, opacity float64) (mfp.Layer, error) {
	if l.Source == nil {
		return nil, fmt.Errorf("%w: vector layer without source", ErrInvalidLayer)
	}
	features, err := l.Source.Features(ctx)
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	tr, err := transformer(l.Source.Projection(), r.proj)
	if err != nil {
		return nil, err
	}

	encoded := make([]EncodedFeature, 0, len(features))
	var unsupported, clipped int
	for i, f := range features {
		if f == nil || f.Geometry == nil {
			unsupported++
			continue
		}
		g, err := encodeGeometry(f.Geometry, tr)
		if errors.Is(err, ErrUnsupportedGeometry) {
			e.logger.Warn("feature geometry not encodable; feature skipped", "layer", l.Name, "feature", i, "err", err)
			unsupported++
			continue
		}
		if err != nil {
			return nil, err
		}
		if !r.clip.Intersects(g.Bound()) {
			clipped++
			continue
		}
		encoded = append(encoded, EncodedFeature{Source: f, Geometry: g})
	}
	observability.IncSkippedFeatures("unsupported_geometry", unsupported)
	observability.IncSkippedFeatures("clipped", clipped)

	styled, table, err := e.styles.ResolveLayerStyles(encoded, l.Style)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	fc.Features = styled
	return &mfp.GeoJSONLayer{
		GeoJSON: fc,
		Style:   table.Document(),
		Opacity: opacity,
		Name:    l.Name,
	}, nil
}
