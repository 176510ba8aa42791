package encoder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

func encodeLayers(t *testing.T, layers ...mapstate.Layer) []mfp.Layer {
	t.Helper()
	m := emptyMap()
	m.Layers = layers
	spec, err := newTestEncoder().EncodeMap(context.Background(), defaultOptions(m, nil))
	if err != nil {
		t.Fatalf("EncodeMap: %v", err)
	}
	return spec.Layers
}

func TestEncodeWMS_SplitsParameters(t *testing.T) {
	src := &mapstate.WMSSource{
		URL: "https://wms.example.com/ows",
		Params: map[string]string{
			"layers":      "roads, rivers",
			"FORMAT":      "image/jpeg",
			"TRANSPARENT": "true",
			"SERVICE":     "WMS",
			"bbox":        "1,2,3,4",
			"time":        "2024-01-01",
		},
		ServerType: "mapserver",
	}
	got := encodeLayers(t,
		&mapstate.ImageLayer{LayerProps: mapstate.LayerProps{Name: "single"}, Source: src},
		&mapstate.TileLayer{Source: src},
	)
	want := `{
		"type": "wms",
		"baseURL": "https://wms.example.com/ows",
		"layers": ["roads", "rivers"],
		"imageFormat": "image/jpeg",
		"customParams": {"TRANSPARENT": "true", "TIME": "2024-01-01"},
		"serverType": "mapserver",
		"useNativeAngle": true,
		"opacity": 1`
	assertJSON(t, got[0], want+`, "name": "single"}`)
	assertJSON(t, got[1], want+`}`)
}

func TestEncodeWMS_RequiresLayers(t *testing.T) {
	m := emptyMap()
	m.Layers = []mapstate.Layer{&mapstate.ImageLayer{Source: &mapstate.WMSSource{URL: "https://wms.example.com"}}}
	if _, err := newTestEncoder().EncodeMap(context.Background(), defaultOptions(m, nil)); !errors.Is(err, ErrInvalidLayer) {
		t.Fatalf("err=%v want ErrInvalidLayer", err)
	}
}

func TestEncodeStaticImage(t *testing.T) {
	got := encodeLayers(t, &mapstate.ImageLayer{
		LayerProps: mapstate.LayerProps{Opacity: mapstate.Float(0.8)},
		Source: &mapstate.StaticImageSource{
			URL:    "https://example.com/plan.png",
			Extent: orb.Bound{Min: orb.Point{10, 20}, Max: orb.Point{30, 40}},
		},
	})
	assertJSON(t, got, `[{"type": "image", "baseURL": "https://example.com/plan.png", "extent": [10, 20, 30, 40], "opacity": 0.8}]`)
}

func TestEncodeWMTS_Matrices(t *testing.T) {
	r0 := mapstate.ResolutionForZoom(0)
	half := math.Pi * orb.EarthRadius
	got := encodeLayers(t, &mapstate.TileLayer{Source: &mapstate.WMTSSource{
		URL:        "https://tiles.example.com/{TileMatrix}/{TileRow}/{TileCol}.png",
		Layer:      "base",
		Style:      "default",
		MatrixSet:  "webmercator",
		Projection: "EPSG:900913",
		Dimensions: map[string]string{"TIME": "2020", "ELEVATION": "0"},
		Grid: mapstate.TileGrid{
			Origin:      orb.Point{-half, half},
			Resolutions: []float64{r0, r0 / 2, r0 / 4},
			MatrixIDs:   []string{"z0", "z1", "z2"},
		},
	}})
	layer := got[0].(*mfp.WMTSLayer)
	if layer.RequestEncoding != "REST" || layer.ImageFormat != "image/png" {
		t.Fatalf("defaults: encoding=%q format=%q", layer.RequestEncoding, layer.ImageFormat)
	}
	if len(layer.Dimensions) != 2 || layer.Dimensions[0] != "ELEVATION" {
		t.Fatalf("dimensions not sorted: %v", layer.Dimensions)
	}
	for i, m := range layer.Matrices {
		n := 1 << i
		if m.MatrixSize != [2]int{n, n} {
			t.Fatalf("matrix %s size=%v want %dx%d", m.Identifier, m.MatrixSize, n, n)
		}
		if want := r0 / float64(n) / 0.00028; math.Abs(m.ScaleDenominator-want) > 1e-6 {
			t.Fatalf("matrix %s scale=%v want %v", m.Identifier, m.ScaleDenominator, want)
		}
		if m.TileSize != [2]int{256, 256} || m.TopLeftCorner != [2]float64{-half, half} {
			t.Fatalf("matrix %s tile=%v corner=%v", m.Identifier, m.TileSize, m.TopLeftCorner)
		}
	}
}

func TestEncodeWMTS_Invalid(t *testing.T) {
	cases := map[string]struct {
		src  *mapstate.WMTSSource
		want error
	}{
		"no resolutions": {&mapstate.WMTSSource{URL: "u", Layer: "l"}, ErrInvalidLayer},
		"id mismatch": {&mapstate.WMTSSource{URL: "u", Layer: "l", Grid: mapstate.TileGrid{
			Resolutions: []float64{1, 2}, MatrixIDs: []string{"a"},
		}}, ErrInvalidLayer},
		"other projection": {&mapstate.WMTSSource{URL: "u", Layer: "l", Projection: "EPSG:2056", Grid: mapstate.TileGrid{
			Resolutions: []float64{1},
		}}, ErrProjection},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			m := emptyMap()
			m.Layers = []mapstate.Layer{&mapstate.TileLayer{Source: c.src}}
			if _, err := newTestEncoder().EncodeMap(context.Background(), defaultOptions(m, nil)); !errors.Is(err, c.want) {
				t.Fatalf("err=%v want %v", err, c.want)
			}
		})
	}
}

func TestEncodeVector_SkipsUnsupportedGeometry(t *testing.T) {
	fs := []*mapstate.Feature{
		{Geometry: orb.Collection{orb.Point{1, 1}}, Properties: map[string]any{"name": "odd"}},
		{Properties: map[string]any{"name": "no geometry"}},
		{Geometry: mapstate.Circle{Center: orb.Point{5, 5}, Radius: 2}, Properties: map[string]any{"name": "round"}},
	}
	got := encodeLayers(t, &mapstate.VectorLayer{
		Source: &mapstate.StaticSource{Items: fs},
		Style:  &mapstate.Style{Fill: &mapstate.Fill{Color: "yellow"}},
	})
	gl := got[0].(*mfp.GeoJSONLayer)
	if len(gl.GeoJSON.Features) != 1 || gl.GeoJSON.Features[0].Properties["name"] != "round" {
		t.Fatalf("features=%v", gl.GeoJSON.Features)
	}
	if _, ok := gl.GeoJSON.Features[0].Geometry.(orb.Polygon); !ok {
		t.Fatalf("circle encoded as %T", gl.GeoJSON.Features[0].Geometry)
	}
}
