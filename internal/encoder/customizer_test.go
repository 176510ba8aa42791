package encoder

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

func TestBaseCustomizer_ZeroExtentIsUnbounded(t *testing.T) {
	if got := (BaseCustomizer{}).ClipExtent(); got != Unbounded {
		t.Fatalf("ClipExtent=%v want Unbounded", got)
	}
	b := NewBaseCustomizer(1, 2, 3, 4).ClipExtent()
	if b.Min != (orb.Point{1, 2}) || b.Max != (orb.Point{3, 4}) {
		t.Fatalf("ClipExtent=%v", b)
	}
}

func TestParseRewriteRules(t *testing.T) {
	got, err := ParseRewriteRules(" http://internal:8080/=https://maps.example.com/ , ,http://wms=http://proxy/wms ")
	if err != nil {
		t.Fatalf("ParseRewriteRules: %v", err)
	}
	want := []RewriteRule{
		{From: "http://internal:8080/", To: "https://maps.example.com/"},
		{From: "http://wms", To: "http://proxy/wms"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rules (-want +got):\n%s", diff)
	}
	for _, bad := range []string{"no-separator", "=https://x"} {
		if _, err := ParseRewriteRules(bad); err == nil {
			t.Fatalf("ParseRewriteRules(%q) accepted", bad)
		}
	}
}

func TestURLRewriter_RewritesBaseURLs(t *testing.T) {
	rules := []RewriteRule{{From: "http://internal:8080", To: "https://maps.example.com"}}
	cust := NewURLRewriter(NewLayerNameFilter(nil, "debug"), rules)

	m := emptyMap()
	m.Layers = []mapstate.Layer{
		&mapstate.TileLayer{Source: &mapstate.XYZSource{URL: "http://internal:8080/tiles/{z}/{x}/{y}.png"}},
		&mapstate.TileLayer{LayerProps: mapstate.LayerProps{Name: "debug"}, Source: &mapstate.OSMSource{}},
		&mapstate.ImageLayer{Source: &mapstate.WMSSource{URL: "http://other/wms", Params: map[string]string{"LAYERS": "a"}}},
		&mapstate.VectorLayer{Source: &mapstate.StaticSource{}},
	}
	spec, err := newTestEncoder().EncodeMap(context.Background(), defaultOptions(m, cust))
	if err != nil {
		t.Fatalf("EncodeMap: %v", err)
	}
	if len(spec.Layers) != 3 {
		t.Fatalf("layers=%d want 3 (debug filtered)", len(spec.Layers))
	}
	if u := spec.Layers[0].(mfp.URLLayer).URL(); u != "https://maps.example.com/tiles/{z}/{x}/{y}.png" {
		t.Fatalf("rewritten url=%q", u)
	}
	if u := spec.Layers[1].(mfp.URLLayer).URL(); u != "http://other/wms" {
		t.Fatalf("unmatched url changed to %q", u)
	}
}

type dropVectors struct{ BaseCustomizer }

func (dropVectors) RewriteLayer(l mfp.Layer) mfp.Layer {
	if l.LayerType() == mfp.TypeGeoJSON {
		return nil
	}
	return l
}

func TestCustomizer_RewriteCanDropEntries(t *testing.T) {
	m := emptyMap()
	m.Layers = []mapstate.Layer{
		&mapstate.VectorLayer{Source: &mapstate.StaticSource{}},
		&mapstate.TileLayer{Source: &mapstate.OSMSource{}},
	}
	spec, err := newTestEncoder().EncodeMap(context.Background(), defaultOptions(m, dropVectors{}))
	if err != nil {
		t.Fatalf("EncodeMap: %v", err)
	}
	if len(spec.Layers) != 1 || spec.Layers[0].LayerType() != mfp.TypeOSM {
		t.Fatalf("layers=%v", spec.Layers)
	}
}

func TestPrintExtent(t *testing.T) {
	// 72 layout pixels are one inch; at this scale one pixel covers one meter
	scale := paperDPI * inchesPerMeter
	b := PrintExtent(orb.Point{100, 200}, [2]float64{72, 36}, scale, 0, mapstate.EPSG3857)
	want := orb.Bound{Min: orb.Point{64, 182}, Max: orb.Point{136, 218}}
	if !approxBound(b, want) {
		t.Fatalf("extent=%v want %v", b, want)
	}

	rotated := PrintExtent(orb.Point{100, 200}, [2]float64{72, 36}, scale, math.Pi/2, mapstate.EPSG3857)
	want = orb.Bound{Min: orb.Point{82, 164}, Max: orb.Point{118, 236}}
	if !approxBound(rotated, want) {
		t.Fatalf("rotated extent=%v want %v", rotated, want)
	}
}

func approxBound(a, b orb.Bound) bool {
	for _, d := range []float64{a.Min[0] - b.Min[0], a.Min[1] - b.Min[1], a.Max[0] - b.Max[0], a.Max[1] - b.Max[1]} {
		if math.Abs(d) > 1e-9 {
			return false
		}
	}
	return true
}
