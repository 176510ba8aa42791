package encoder

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
)

// circleSides is the vertex count of the polygon standing in for a circle.
const circleSides = 32

type geomClass byte

const (
	classPoint geomClass = 'P'
	classLine  geomClass = 'L'
	classArea  geomClass = 'A'
)

// EncodeGeometry converts a feature geometry into a GeoJSON-ready orb
// geometry in the target projection. Circles have no GeoJSON form and become
// a regular 32-sided polygon with the same center and radius; the result is
// an approximation, not the circle. The input is never modified.
func EncodeGeometry(g mapstate.Geometry, from, to string) (orb.Geometry, error) {
	tr, err := transformer(from, to)
	if err != nil {
		return nil, err
	}
	return encodeGeometry(g, tr)
}

func encodeGeometry(g mapstate.Geometry, tr orb.Projection) (orb.Geometry, error) {
	var out orb.Geometry
	switch v := g.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString, orb.Polygon, orb.MultiPolygon:
		out = orb.Clone(v.(orb.Geometry))
	case mapstate.Circle:
		out = circlePolygon(v, circleSides)
	case *mapstate.Circle:
		if v == nil {
			return nil, fmt.Errorf("%w: nil circle", ErrUnsupportedGeometry)
		}
		out = circlePolygon(*v, circleSides)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
	if tr != nil {
		out = project.Geometry(out, tr)
	}
	return out, nil
}

// circlePolygon builds a closed ring starting at angle 0, counter clockwise.
func circlePolygon(c mapstate.Circle, sides int) orb.Polygon {
	ring := make(orb.Ring, 0, sides+1)
	for i := 0; i < sides; i++ {
		a := 2 * math.Pi * float64(i) / float64(sides)
		ring = append(ring, orb.Point{
			c.Center[0] + c.Radius*math.Cos(a),
			c.Center[1] + c.Radius*math.Sin(a),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

func classOf(g orb.Geometry) geomClass {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return classPoint
	case orb.LineString, orb.MultiLineString:
		return classLine
	default:
		return classArea
	}
}
