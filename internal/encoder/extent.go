package encoder

import (
	"math"

	"github.com/paulmach/orb"
)

// paperDPI is the resolution in which print layouts express map sizes.
const paperDPI = 72

// PrintExtent returns the extent covered on the ground by a map of mapSize
// (layout pixels at 72 dpi) printed at scale around center. A rotated map
// yields the bound of the rotated rectangle.
func PrintExtent(center orb.Point, mapSize [2]float64, scale, rotation float64, proj string) orb.Bound {
	unitsPerPixel := scale / paperDPI / inchesPerMeter / metersPerUnit(proj)
	hw := mapSize[0] * unitsPerPixel / 2
	hh := mapSize[1] * unitsPerPixel / 2
	if rotation != 0 {
		cos, sin := math.Abs(math.Cos(rotation)), math.Abs(math.Sin(rotation))
		hw, hh = hw*cos+hh*sin, hw*sin+hh*cos
	}
	return orb.Bound{
		Min: orb.Point{center[0] - hw, center[1] - hh},
		Max: orb.Point{center[0] + hw, center[1] + hh},
	}
}
