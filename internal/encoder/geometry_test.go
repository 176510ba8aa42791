package encoder

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
)

func TestEncodeGeometry_CircleBecomesClosedPolygon(t *testing.T) {
	c := mapstate.Circle{Center: orb.Point{100, 200}, Radius: 50}
	g, err := EncodeGeometry(c, mapstate.EPSG3857, mapstate.EPSG3857)
	if err != nil {
		t.Fatalf("EncodeGeometry: %v", err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok || len(poly) != 1 {
		t.Fatalf("got %T %v, want single ring polygon", g, g)
	}
	ring := poly[0]
	if len(ring) != circleSides+1 {
		t.Fatalf("ring has %d vertices want %d", len(ring), circleSides+1)
	}
	if ring[0] != ring[len(ring)-1] {
		t.Fatalf("ring not closed: %v .. %v", ring[0], ring[len(ring)-1])
	}
	for i, p := range ring {
		if d := math.Hypot(p[0]-100, p[1]-200); math.Abs(d-50) > 1e-9 {
			t.Fatalf("vertex %d at distance %v want 50", i, d)
		}
	}
}

func TestEncodeGeometry_PointerCircle(t *testing.T) {
	g, err := EncodeGeometry(&mapstate.Circle{Center: orb.Point{0, 0}, Radius: 1}, "", mapstate.EPSG3857)
	if err != nil {
		t.Fatalf("EncodeGeometry: %v", err)
	}
	if _, ok := g.(orb.Polygon); !ok {
		t.Fatalf("got %T want orb.Polygon", g)
	}
}

func TestEncodeGeometry_DoesNotMutateInput(t *testing.T) {
	in := orb.LineString{{7, 46}, {8, 47}}
	out, err := EncodeGeometry(in, mapstate.EPSG4326, mapstate.EPSG3857)
	if err != nil {
		t.Fatalf("EncodeGeometry: %v", err)
	}
	if in[0] != (orb.Point{7, 46}) || in[1] != (orb.Point{8, 47}) {
		t.Fatalf("input mutated: %v", in)
	}
	if ls := out.(orb.LineString); ls[0][0] < 700000 {
		t.Fatalf("output not projected: %v", ls)
	}
}

func TestEncodeGeometry_RoundTripProjection(t *testing.T) {
	in := orb.MultiPoint{{7.1560911, 46.3521411}, {-120, -30}}
	merc, err := EncodeGeometry(in, "CRS:84", "EPSG:900913")
	if err != nil {
		t.Fatalf("to mercator: %v", err)
	}
	back, err := EncodeGeometry(merc, mapstate.EPSG3857, mapstate.EPSG4326)
	if err != nil {
		t.Fatalf("to wgs84: %v", err)
	}
	for i, p := range back.(orb.MultiPoint) {
		if math.Abs(p[0]-in[i][0]) > 1e-9 || math.Abs(p[1]-in[i][1]) > 1e-9 {
			t.Fatalf("point %d: %v want %v", i, p, in[i])
		}
	}
}

func TestEncodeGeometry_Errors(t *testing.T) {
	if _, err := EncodeGeometry(orb.Collection{orb.Point{1, 2}}, "", mapstate.EPSG3857); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Fatalf("collection: err=%v want ErrUnsupportedGeometry", err)
	}
	if _, err := EncodeGeometry((*mapstate.Circle)(nil), "", mapstate.EPSG3857); !errors.Is(err, ErrUnsupportedGeometry) {
		t.Fatalf("nil circle: err=%v want ErrUnsupportedGeometry", err)
	}
	if _, err := EncodeGeometry(orb.Point{1, 2}, "EPSG:2056", mapstate.EPSG3857); !errors.Is(err, ErrProjection) {
		t.Fatalf("swiss grid: err=%v want ErrProjection", err)
	}
}

func TestClassOf(t *testing.T) {
	cases := []struct {
		g    orb.Geometry
		want geomClass
	}{
		{orb.Point{}, classPoint},
		{orb.MultiPoint{}, classPoint},
		{orb.LineString{}, classLine},
		{orb.MultiLineString{}, classLine},
		{orb.Polygon{}, classArea},
		{orb.MultiPolygon{}, classArea},
	}
	for _, c := range cases {
		if got := classOf(c.g); got != c.want {
			t.Fatalf("classOf(%T)=%c want %c", c.g, got, c.want)
		}
	}
}
