package encoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/mfp-encoder/internal/colors"
	"github.com/mohammed-shakir/mfp-encoder/internal/core/observability"
	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

// StyleAttribute is the reserved property joining features to style rules.
const StyleAttribute = "_gmfp_style"

const (
	defaultStrokeWidth = 1.25
	defaultFont        = "10px sans-serif"
	defaultMarker      = "circle"
)

var defaultTextFill = colors.Color{Hex: "#333333", Opacity: 1}

var markerShapes = map[string]struct{}{
	"circle": {}, "square": {}, "triangle": {}, "star": {}, "cross": {}, "x": {},
}

// EncodedFeature is a caller feature with its geometry already encoded.
type EncodedFeature struct {
	Source   *mapstate.Feature
	Geometry orb.Geometry
}

type tableEntry struct {
	canonical []byte
	key       string
}

// StyleTable maps synthetic keys ("1", "2", ...) to symbolizer sets. Two
// keys never map to equivalent sets of the same geometry class.
type StyleTable struct {
	buckets map[uint64][]tableEntry
	rules   []mfp.StyleRule
}

func newStyleTable() *StyleTable {
	return &StyleTable{buckets: map[uint64][]tableEntry{}}
}

func (t *StyleTable) Len() int { return len(t.rules) }

// Document returns the rule based style, nil when no feature was styled.
func (t *StyleTable) Document() *mfp.StyleDocument {
	if len(t.rules) == 0 {
		return nil
	}
	return &mfp.StyleDocument{Version: mfp.StyleVersion, Rules: t.rules}
}

// keyFor returns the key of syms, whose JSON encoding is body.
func (t *StyleTable) keyFor(class geomClass, syms []mfp.Symbolizer, body []byte) string {
	canon := append([]byte{byte(class), ':'}, body...)
	h := xxhash.Sum64(canon)
	for _, e := range t.buckets[h] {
		if bytes.Equal(e.canonical, canon) {
			return e.key
		}
	}
	key := strconv.Itoa(len(t.rules) + 1)
	t.buckets[h] = append(t.buckets[h], tableEntry{canonical: canon, key: key})
	t.rules = append(t.rules, mfp.StyleRule{
		Filter:      mfp.RuleFilter(StyleAttribute, key),
		Symbolizers: syms,
	})
	return key
}

// StyleResolver turns per feature styles into a deduplicated style table.
type StyleResolver struct {
	logger *slog.Logger
}

func NewStyleResolver(logger *slog.Logger) *StyleResolver {
	return &StyleResolver{logger: logger}
}

// ResolveLayerStyles styles every feature of one layer. It returns copies of
// the features carrying their style key and the table of unique symbolizer
// sets. Features without a usable style are not drawn by the map either and
// are left out. A fresh table is built per call.
func (r *StyleResolver) ResolveLayerStyles(features []EncodedFeature, fallback mapstate.Styler) ([]*geojson.Feature, *StyleTable, error) {
	table := newStyleTable()
	out := make([]*geojson.Feature, 0, len(features))
	unstyled := 0

	for i, ef := range features {
		src := ef.Source
		if _, taken := src.Properties[StyleAttribute]; taken {
			return nil, nil, fmt.Errorf("%w: feature %d has property %q", ErrPropertyCollision, i, StyleAttribute)
		}
		class := classOf(ef.Geometry)

		syms, body, err := r.symbolizersFor(src, class, fallback)
		if err != nil {
			r.logger.Warn("feature style unusable; feature skipped", "feature", i, "err", err)
			observability.IncSkippedFeatures("style_error", 1)
			continue
		}
		if len(syms) == 0 {
			unstyled++
			continue
		}

		key := table.keyFor(class, syms, body)

		props := make(geojson.Properties, len(src.Properties)+1)
		for k, v := range src.Properties {
			props[k] = v
		}
		props[StyleAttribute] = key

		gf := geojson.NewFeature(ef.Geometry)
		gf.ID = src.ID
		gf.Properties = props
		out = append(out, gf)
	}

	if unstyled > 0 {
		r.logger.Debug("unstyled features left out", "count", unstyled)
		observability.IncSkippedFeatures("unstyled", unstyled)
	}
	return out, table, nil
}

// symbolizersFor tries the feature style, then the layer style, and returns
// the symbolizers with their JSON encoding. An error is returned only when
// every available style failed.
func (r *StyleResolver) symbolizersFor(f *mapstate.Feature, class geomClass, fallback mapstate.Styler) ([]mfp.Symbolizer, []byte, error) {
	var firstErr error
	for _, s := range []mapstate.Styler{f.Style, fallback} {
		if s == nil {
			continue
		}
		syms, body, err := symbolizersOf(s, f, class)
		if err == nil {
			return syms, body, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, nil, firstErr
}

func symbolizersOf(s mapstate.Styler, f *mapstate.Feature, class geomClass) ([]mfp.Symbolizer, []byte, error) {
	styles, err := resolveStyles(s, f)
	if err != nil {
		return nil, nil, err
	}
	syms, err := canonicalSymbolizers(class, styles)
	if err != nil {
		return nil, nil, err
	}
	if len(syms) == 0 {
		return nil, nil, nil
	}
	// NaN or infinite numbers cannot be written to the print spec.
	body, err := json.Marshal(syms)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStyleResolution, err)
	}
	return syms, body, nil
}

// resolveStyles evaluates a styler, turning a panic into ErrStyleResolution.
func resolveStyles(s mapstate.Styler, f *mapstate.Feature) (styles []*mapstate.Style, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			styles, err = nil, fmt.Errorf("%w: style function panicked: %v", ErrStyleResolution, rec)
		}
	}()
	styles, err = s.Resolve(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStyleResolution, err)
	}
	return styles, nil
}

// canonicalSymbolizers orders shape symbolizers of all styles first and
// text symbolizers last.
func canonicalSymbolizers(class geomClass, styles []*mapstate.Style) ([]mfp.Symbolizer, error) {
	var shapes, texts []mfp.Symbolizer
	for _, st := range styles {
		if st == nil {
			continue
		}
		s, err := shapeSymbolizer(class, st)
		if err != nil {
			return nil, err
		}
		if s != nil {
			shapes = append(shapes, s)
		}
		t, err := textSymbolizer(st.Text)
		if err != nil {
			return nil, err
		}
		if t != nil {
			texts = append(texts, t)
		}
	}
	return append(shapes, texts...), nil
}

func shapeSymbolizer(class geomClass, st *mapstate.Style) (mfp.Symbolizer, error) {
	switch class {
	case classArea:
		fill, err := fillOf(st.Fill)
		if err != nil {
			return nil, err
		}
		stroke, err := strokeOf(st.Stroke)
		if err != nil {
			return nil, err
		}
		switch {
		case fill != nil:
			return &mfp.PolygonSymbolizer{Fill: fill, Stroke: stroke}, nil
		case stroke != nil:
			return &mfp.LineSymbolizer{Stroke: *stroke}, nil
		}
		return nil, nil
	case classLine:
		stroke, err := strokeOf(st.Stroke)
		if err != nil || stroke == nil {
			return nil, err
		}
		return &mfp.LineSymbolizer{Stroke: *stroke}, nil
	default:
		return pointSymbolizer(st.Image)
	}
}

func pointSymbolizer(img mapstate.Image) (mfp.Symbolizer, error) {
	switch m := img.(type) {
	case nil:
		return nil, nil
	case *mapstate.Marker:
		if m == nil {
			return nil, nil
		}
		shape := strings.ToLower(strings.TrimSpace(m.Shape))
		if shape == "" {
			shape = defaultMarker
		}
		if _, ok := markerShapes[shape]; !ok {
			return nil, fmt.Errorf("%w: unknown marker shape %q", ErrStyleResolution, m.Shape)
		}
		if m.Radius <= 0 {
			return nil, fmt.Errorf("%w: marker radius must be positive", ErrStyleResolution)
		}
		fill, err := fillOf(m.Fill)
		if err != nil {
			return nil, err
		}
		stroke, err := strokeOf(m.Stroke)
		if err != nil {
			return nil, err
		}
		if fill == nil && stroke == nil {
			return nil, nil
		}
		return &mfp.PointSymbolizer{
			GraphicName: shape,
			PointRadius: m.Radius,
			Rotation:    degrees(m.Rotation),
			Fill:        fill,
			Stroke:      stroke,
		}, nil
	case *mapstate.Icon:
		if m == nil {
			return nil, nil
		}
		if strings.TrimSpace(m.Src) == "" {
			return nil, fmt.Errorf("%w: icon without src", ErrStyleResolution)
		}
		return &mfp.PointSymbolizer{
			ExternalGraphic: m.Src,
			GraphicWidth:    m.Width,
			GraphicHeight:   m.Height,
			GraphicOpacity:  optional(m.Opacity, 1),
			Rotation:        degrees(m.Rotation),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown image style %T", ErrStyleResolution, img)
	}
}

func textSymbolizer(t *mapstate.Text) (mfp.Symbolizer, error) {
	if t == nil || strings.TrimSpace(t.Label) == "" {
		return nil, nil
	}
	fill := defaultTextFill
	if t.Fill != nil && t.Fill.Color != "" {
		c, err := normalizeColor(t.Fill.Color)
		if err != nil {
			return nil, err
		}
		c.Opacity *= optional(t.Fill.Opacity, 1)
		fill = c
	}
	font := t.Font
	if strings.TrimSpace(font) == "" {
		font = defaultFont
	}
	sym := &mfp.TextSymbolizer{
		Label:         t.Label,
		FontFamily:    font,
		LabelXOffset:  t.OffsetX,
		LabelYOffset:  t.OffsetY,
		LabelAlign:    labelAlign(t.Align, t.Baseline),
		LabelRotation: degrees(t.Rotation),
		FillColor:     fill.Hex,
		FillOpacity:   fill.Opacity,
		FontColor:     fill.Hex,
	}
	halo, err := strokeOf(t.Stroke)
	if err != nil {
		return nil, err
	}
	if halo != nil {
		sym.Halo = &mfp.Halo{
			HaloColor:   halo.StrokeColor,
			HaloOpacity: halo.StrokeOpacity,
			HaloRadius:  halo.StrokeWidth,
		}
	}
	return sym, nil
}

func fillOf(f *mapstate.Fill) (*mfp.Fill, error) {
	if f == nil || strings.TrimSpace(f.Color) == "" {
		return nil, nil
	}
	c, err := normalizeColor(f.Color)
	if err != nil {
		return nil, err
	}
	return &mfp.Fill{FillColor: c.Hex, FillOpacity: c.Opacity * optional(f.Opacity, 1)}, nil
}

func strokeOf(s *mapstate.Stroke) (*mfp.Stroke, error) {
	if s == nil || strings.TrimSpace(s.Color) == "" {
		return nil, nil
	}
	c, err := normalizeColor(s.Color)
	if err != nil {
		return nil, err
	}
	width := s.Width
	if width <= 0 {
		width = defaultStrokeWidth
	}
	out := &mfp.Stroke{
		StrokeColor:   c.Hex,
		StrokeOpacity: c.Opacity * optional(s.Opacity, 1),
		StrokeWidth:   width,
		StrokeLinecap: s.LineCap,
	}
	if len(s.LineDash) > 0 {
		out.StrokeDashstyle = "dash"
	}
	return out, nil
}

func normalizeColor(s string) (colors.Color, error) {
	c, err := colors.Normalize(s)
	if err != nil {
		return colors.Color{}, fmt.Errorf("%w: %w", ErrStyleResolution, err)
	}
	return c, nil
}

// labelAlign maps canvas alignment onto the two letter print form, e.g. "cm".
func labelAlign(align, baseline string) string {
	h := "c"
	switch strings.ToLower(align) {
	case "left", "start":
		h = "l"
	case "right", "end":
		h = "r"
	}
	v := "m"
	switch strings.ToLower(baseline) {
	case "top", "hanging":
		v = "t"
	case "bottom", "alphabetic", "ideographic":
		v = "b"
	}
	return h + v
}

func optional(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func degrees(rad float64) float64 {
	if rad == 0 {
		return 0
	}
	return rad * 180 / math.Pi
}
