package encoder

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

// standardPixelSize is the OGC rendering pixel size in meters.
const standardPixelSize = 0.00028

func encodeWMTS(src *mapstate.WMTSSource, viewProj string, opacity float64, name string) (*mfp.WMTSLayer, error) {
	if strings.TrimSpace(src.URL) == "" || src.Layer == "" {
		return nil, fmt.Errorf("%w: wmts source needs url and layer", ErrInvalidLayer)
	}
	proj := viewProj
	if src.Projection != "" {
		a, _ := mapstate.CanonicalProjection(src.Projection)
		b, _ := mapstate.CanonicalProjection(viewProj)
		if a != b {
			return nil, fmt.Errorf("%w: wmts matrix set in %s, view in %s", ErrProjection, src.Projection, viewProj)
		}
		proj = src.Projection
	}
	matrices, err := wmtsMatrices(src.Grid, proj)
	if err != nil {
		return nil, err
	}

	enc := strings.ToUpper(src.RequestEncoding)
	if enc == "" {
		enc = "REST"
	}
	format := src.Format
	if format == "" {
		format = defaultImageFormat
	}
	out := &mfp.WMTSLayer{
		BaseURL:         src.URL,
		Layer:           src.Layer,
		Style:           src.Style,
		MatrixSet:       src.MatrixSet,
		RequestEncoding: enc,
		ImageFormat:     format,
		Matrices:        matrices,
		Opacity:         opacity,
		Name:            name,
	}
	if len(src.Dimensions) > 0 {
		out.DimensionParams = make(map[string]string, len(src.Dimensions))
		for k, v := range src.Dimensions {
			out.Dimensions = append(out.Dimensions, k)
			out.DimensionParams[k] = v
		}
		slices.Sort(out.Dimensions)
	}
	return out, nil
}

// wmtsMatrices describes every zoom level of the grid. Matrix sizes count
// the tiles needed to cover the grid extent, or the projection extent when
// the grid has none.
func wmtsMatrices(g mapstate.TileGrid, proj string) ([]mfp.WMTSMatrix, error) {
	if len(g.Resolutions) == 0 {
		return nil, fmt.Errorf("%w: wmts grid without resolutions", ErrInvalidLayer)
	}
	if len(g.MatrixIDs) != 0 && len(g.MatrixIDs) != len(g.Resolutions) {
		return nil, fmt.Errorf("%w: wmts grid has %d matrix ids for %d resolutions",
			ErrInvalidLayer, len(g.MatrixIDs), len(g.Resolutions))
	}
	extent := g.Extent
	if extent.IsZero() {
		var ok bool
		if extent, ok = projectionExtent(proj); !ok {
			return nil, fmt.Errorf("%w: wmts grid without extent in %s", ErrInvalidLayer, proj)
		}
	}
	tile := g.TileSize
	if tile[0] <= 0 || tile[1] <= 0 {
		tile = [2]int{256, 256}
	}
	origin := g.Origin
	if origin == (orb.Point{}) {
		origin = orb.Point{extent.Min[0], extent.Max[1]}
	}
	mpu := metersPerUnit(proj)

	out := make([]mfp.WMTSMatrix, len(g.Resolutions))
	for i, res := range g.Resolutions {
		if res <= 0 {
			return nil, fmt.Errorf("%w: wmts resolution %d is not positive", ErrInvalidLayer, i)
		}
		id := strconv.Itoa(i)
		if len(g.MatrixIDs) > 0 {
			id = g.MatrixIDs[i]
		}
		out[i] = mfp.WMTSMatrix{
			Identifier:       id,
			ScaleDenominator: res * mpu / standardPixelSize,
			TopLeftCorner:    [2]float64{origin[0], origin[1]},
			TileSize:         tile,
			MatrixSize: [2]int{
				tileCount(extent.Max[0]-origin[0], res*float64(tile[0])),
				tileCount(origin[1]-extent.Min[1], res*float64(tile[1])),
			},
		}
	}
	return out, nil
}

func tileCount(span, tileSpan float64) int {
	n := int(math.Ceil(span/tileSpan - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}
