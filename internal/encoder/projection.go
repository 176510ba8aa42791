package encoder

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
)

const (
	// inchesPerMeter is the print service's conversion factor.
	inchesPerMeter = 39.37
	// metersPerDegree on the WGS84 sphere used by web mercator.
	metersPerDegree = 2 * math.Pi * orb.EarthRadius / 360
)

// transformer returns the coordinate transform between two projections, nil
// for identity. An empty source projection means "already in the target".
func transformer(from, to string) (orb.Projection, error) {
	if strings.TrimSpace(from) == "" {
		return nil, nil
	}
	f, fok := mapstate.CanonicalProjection(from)
	t, tok := mapstate.CanonicalProjection(to)
	if f == t {
		return nil, nil
	}
	if !fok || !tok {
		return nil, fmt.Errorf("%w: %s to %s", ErrProjection, from, to)
	}
	switch {
	case f == mapstate.EPSG4326 && t == mapstate.EPSG3857:
		return project.WGS84.ToMercator, nil
	case f == mapstate.EPSG3857 && t == mapstate.EPSG4326:
		return project.Mercator.ToWGS84, nil
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrProjection, from, to)
}

// metersPerUnit of a projection. Unknown projections are taken as metric.
func metersPerUnit(proj string) float64 {
	if c, _ := mapstate.CanonicalProjection(proj); c == mapstate.EPSG4326 {
		return metersPerDegree
	}
	return 1
}

// projectionExtent is the valid extent of the known projections.
func projectionExtent(proj string) (orb.Bound, bool) {
	const half = math.Pi * orb.EarthRadius
	switch c, _ := mapstate.CanonicalProjection(proj); c {
	case mapstate.EPSG3857:
		return orb.Bound{Min: orb.Point{-half, -half}, Max: orb.Point{half, half}}, true
	case mapstate.EPSG4326:
		return orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, true
	}
	return orb.Bound{}, false
}

// Scale derives the scale denominator from a resolution in map units per pixel.
func Scale(resolution, dpi float64, proj string) float64 {
	return resolution * metersPerUnit(proj) * inchesPerMeter * dpi
}
