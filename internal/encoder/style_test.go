package encoder

import (
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

func resolver() *StyleResolver { return NewStyleResolver(slog.New(slog.DiscardHandler)) }

func encoded(fs ...*mapstate.Feature) []EncodedFeature {
	out := make([]EncodedFeature, len(fs))
	for i, f := range fs {
		g, _ := encodeGeometry(f.Geometry, nil)
		out[i] = EncodedFeature{Source: f, Geometry: g}
	}
	return out
}

func TestResolveLayerStyles_DeduplicatesEquivalentStyles(t *testing.T) {
	red := &mapstate.Style{Stroke: &mapstate.Stroke{Color: "red", Width: 2}}
	sameRed := &mapstate.Style{Stroke: &mapstate.Stroke{Color: "#f00", Width: 2}}
	blue := &mapstate.Style{Stroke: &mapstate.Stroke{Color: "blue", Width: 2}}

	fs := []*mapstate.Feature{
		{Geometry: orb.LineString{{0, 0}, {1, 1}}, Style: red},
		{Geometry: orb.LineString{{0, 0}, {2, 2}}, Style: blue},
		{Geometry: orb.LineString{{0, 0}, {3, 3}}, Style: sameRed},
		// same symbolizers on another geometry class get their own key
		{Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, Style: red},
	}
	out, table, err := resolver().ResolveLayerStyles(encoded(fs...), nil)
	if err != nil {
		t.Fatalf("ResolveLayerStyles: %v", err)
	}
	var got []any
	for _, f := range out {
		got = append(got, f.Properties[StyleAttribute])
	}
	if diff := cmp.Diff([]any{"1", "2", "1", "3"}, got); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	if table.Len() != 3 {
		t.Fatalf("table has %d rules want 3", table.Len())
	}
	doc := table.Document()
	if doc.Rules[2].Filter != "[_gmfp_style = '3']" {
		t.Fatalf("filter=%q", doc.Rules[2].Filter)
	}
	if _, ok := doc.Rules[2].Symbolizers[0].(*mfp.LineSymbolizer); !ok {
		t.Fatalf("stroke only polygon: got %T want line symbolizer", doc.Rules[2].Symbolizers[0])
	}
}

func TestResolveLayerStyles_StableAcrossCalls(t *testing.T) {
	mk := func() []EncodedFeature {
		return encoded(polygonFeature(), lineFeature(), pointFeature(), polygonFeature())
	}
	a, ta, err := resolver().ResolveLayerStyles(mk(), labelled)
	if err != nil {
		t.Fatal(err)
	}
	b, tb, err := resolver().ResolveLayerStyles(mk(), labelled)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(jsonValue(t, ta.Document()), jsonValue(t, tb.Document())); diff != "" {
		t.Fatalf("documents differ:\n%s", diff)
	}
	for i := range a {
		if a[i].Properties[StyleAttribute] != b[i].Properties[StyleAttribute] {
			t.Fatalf("feature %d key %v vs %v", i, a[i].Properties[StyleAttribute], b[i].Properties[StyleAttribute])
		}
	}
	// an identical polygon reuses the first key
	if got := a[3].Properties[StyleAttribute]; got != "1" {
		t.Fatalf("identical polygon got key %v want 1", got)
	}
}

func TestResolveLayerStyles_PropertyCollision(t *testing.T) {
	f := pointFeature()
	f.Properties[StyleAttribute] = "mine"
	_, _, err := resolver().ResolveLayerStyles(encoded(f), labelled)
	if !errors.Is(err, ErrPropertyCollision) {
		t.Fatalf("err=%v want ErrPropertyCollision", err)
	}
}

func TestResolveLayerStyles_FallbackOnStyleFailure(t *testing.T) {
	panicky := mapstate.StyleFunc(func(*mapstate.Feature) ([]*mapstate.Style, error) { panic("boom") })
	failing := mapstate.StyleFunc(func(*mapstate.Feature) ([]*mapstate.Style, error) { return nil, errors.New("nope") })
	layerStyle := &mapstate.Style{Stroke: &mapstate.Stroke{Color: "black"}}

	a, b, c := lineFeature(), lineFeature(), lineFeature()
	a.Style, b.Style = panicky, failing
	out, table, err := resolver().ResolveLayerStyles(encoded(a, b, c), layerStyle)
	if err != nil {
		t.Fatalf("ResolveLayerStyles: %v", err)
	}
	if len(out) != 3 || table.Len() != 1 {
		t.Fatalf("features=%d rules=%d want 3 and 1", len(out), table.Len())
	}

	out, _, err = resolver().ResolveLayerStyles(encoded(a, c), nil)
	if err != nil {
		t.Fatalf("ResolveLayerStyles without fallback: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("features=%d want 0 (panicking and unstyled features skipped)", len(out))
	}
}

func TestResolveLayerStyles_BadColorSkipsFeature(t *testing.T) {
	bad := lineFeature()
	bad.Style = &mapstate.Style{Stroke: &mapstate.Stroke{Color: "not-a-color"}}
	good := lineFeature()
	good.Style = &mapstate.Style{Stroke: &mapstate.Stroke{Color: "navy"}}

	out, table, err := resolver().ResolveLayerStyles(encoded(bad, good), nil)
	if err != nil {
		t.Fatalf("ResolveLayerStyles: %v", err)
	}
	if len(out) != 1 || table.Len() != 1 {
		t.Fatalf("features=%d rules=%d want 1 and 1", len(out), table.Len())
	}
	assertJSON(t, table.Document().Rules[0].Symbolizers, `[
		{"type": "line", "strokeColor": "#000080", "strokeOpacity": 1, "strokeWidth": 1.25}
	]`)
}

func TestResolveLayerStyles_UnencodableNumberSkipsFeature(t *testing.T) {
	nan := lineFeature()
	nan.Style = &mapstate.Style{Text: &mapstate.Text{Label: "x", OffsetY: math.NaN()}}
	inf := lineFeature()
	inf.Style = &mapstate.Style{Stroke: &mapstate.Stroke{Color: "red", Width: math.Inf(1)}}
	good := lineFeature()
	good.Style = &mapstate.Style{Stroke: &mapstate.Stroke{Color: "navy"}}

	out, table, err := resolver().ResolveLayerStyles(encoded(nan, inf, good), nil)
	if err != nil {
		t.Fatalf("ResolveLayerStyles: %v", err)
	}
	if len(out) != 1 || table.Len() != 1 {
		t.Fatalf("features=%d rules=%d want 1 and 1", len(out), table.Len())
	}

	// The layer style still applies when the feature style cannot be encoded.
	layerStyle := &mapstate.Style{Stroke: &mapstate.Stroke{Color: "black"}}
	out, table, err = resolver().ResolveLayerStyles(encoded(nan), layerStyle)
	if err != nil {
		t.Fatalf("ResolveLayerStyles with fallback: %v", err)
	}
	if len(out) != 1 || table.Len() != 1 {
		t.Fatalf("features=%d rules=%d want 1 and 1", len(out), table.Len())
	}
}

func TestResolveLayerStyles_EmptyInputHasNoDocument(t *testing.T) {
	out, table, err := resolver().ResolveLayerStyles(nil, labelled)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 || table.Document() != nil {
		t.Fatalf("got %d features and document %v", len(out), table.Document())
	}
}

func TestCanonicalSymbolizers_ShapesBeforeTexts(t *testing.T) {
	styles := []*mapstate.Style{
		{
			Image: &mapstate.Marker{Shape: "Square", Radius: 4, Fill: &mapstate.Fill{Color: "#ff000080"}},
			Text:  &mapstate.Text{Label: "first", Align: "left", Baseline: "top"},
		},
		{
			Image: &mapstate.Icon{Src: "https://example.com/pin.png", Width: 16, Height: 24},
			Text: &mapstate.Text{
				Label:  "second",
				Fill:   &mapstate.Fill{Color: "white"},
				Stroke: &mapstate.Stroke{Color: "black", Width: 2},
			},
		},
	}
	syms, err := canonicalSymbolizers(classPoint, styles)
	if err != nil {
		t.Fatalf("canonicalSymbolizers: %v", err)
	}
	assertJSON(t, syms, `[
		{"type": "point", "graphicName": "square", "pointRadius": 4, "fillColor": "#ff0000", "fillOpacity": 0.5019607843137255},
		{"type": "point", "externalGraphic": "https://example.com/pin.png", "graphicWidth": 16, "graphicHeight": 24, "graphicOpacity": 1},
		{"type": "text", "label": "first", "fontFamily": "10px sans-serif", "labelXOffset": 0, "labelYOffset": 0,
		 "labelAlign": "lt", "fillColor": "#333333", "fillOpacity": 1, "fontColor": "#333333"},
		{"type": "text", "label": "second", "fontFamily": "10px sans-serif", "labelXOffset": 0, "labelYOffset": 0,
		 "labelAlign": "cm", "fillColor": "#ffffff", "fillOpacity": 1, "fontColor": "#ffffff",
		 "haloColor": "#000000", "haloOpacity": 1, "haloRadius": 2}
	]`)
}

func TestCanonicalSymbolizers_InvalidMarker(t *testing.T) {
	for name, m := range map[string]*mapstate.Marker{
		"shape":  {Shape: "hexagon", Radius: 3, Fill: &mapstate.Fill{Color: "red"}},
		"radius": {Shape: "circle", Fill: &mapstate.Fill{Color: "red"}},
	} {
		if _, err := canonicalSymbolizers(classPoint, []*mapstate.Style{{Image: m}}); !errors.Is(err, ErrStyleResolution) {
			t.Fatalf("%s: err=%v want ErrStyleResolution", name, err)
		}
	}
}

func TestLabelAlign(t *testing.T) {
	cases := []struct{ align, baseline, want string }{
		{"", "", "cm"},
		{"right", "bottom", "rb"},
		{"start", "alphabetic", "lb"},
		{"center", "hanging", "ct"},
		{"END", "middle", "rm"},
	}
	for _, c := range cases {
		if got := labelAlign(c.align, c.baseline); got != c.want {
			t.Fatalf("labelAlign(%q, %q)=%q want %q", c.align, c.baseline, got, c.want)
		}
	}
}
