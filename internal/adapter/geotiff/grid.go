package geotiff

import (
	"errors"
	"math"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/paulmach/orb"
)

var errRotated = errors.New("rotated geotransform not supported")

// grid maps pixel indices to lon/lat through a north-up affine geotransform.
type grid struct {
	gt    [6]float64
	sizeX int
	sizeY int
}

func newGrid(gt [6]float64, sizeX, sizeY int) (grid, error) {
	if gt[2] != 0 || gt[4] != 0 {
		return grid{}, errRotated
	}
	if gt[1] == 0 || gt[5] == 0 {
		return grid{}, errors.New("degenerate geotransform")
	}
	return grid{gt: gt, sizeX: sizeX, sizeY: sizeY}, nil
}

// center returns the coordinate of the centre of pixel (x, y).
func (g grid) center(x, y int) orb.Point {
	return orb.Point{
		g.gt[0] + g.gt[1]*(float64(x)+0.5),
		g.gt[3] + g.gt[5]*(float64(y)+0.5),
	}
}

// cellSize returns the pixel width and height in degrees.
func (g grid) cellSize() domain.CellSize {
	return domain.CellSize{Lon: math.Abs(g.gt[1]), Lat: math.Abs(g.gt[5])}
}

// bound returns the raster's full extent.
func (g grid) bound() orb.Bound {
	a := orb.Point{g.gt[0], g.gt[3]}
	b := orb.Point{g.gt[0] + g.gt[1]*float64(g.sizeX), g.gt[3] + g.gt[5]*float64(g.sizeY)}
	return orb.Bound{Min: a, Max: a}.Extend(b)
}

// window returns the pixel rectangle covering b, clipped to the raster.
// ok is false when b lies outside the raster.
func (g grid) window(b orb.Bound) (x0, y0, w, h int, ok bool) {
	xa := (b.Min.Lon() - g.gt[0]) / g.gt[1]
	xb := (b.Max.Lon() - g.gt[0]) / g.gt[1]
	ya := (b.Min.Lat() - g.gt[3]) / g.gt[5]
	yb := (b.Max.Lat() - g.gt[3]) / g.gt[5]

	x0 = clamp(int(math.Floor(math.Min(xa, xb))), 0, g.sizeX)
	x1 := clamp(int(math.Ceil(math.Max(xa, xb))), 0, g.sizeX)
	y0 = clamp(int(math.Floor(math.Min(ya, yb))), 0, g.sizeY)
	y1 := clamp(int(math.Ceil(math.Max(ya, yb))), 0, g.sizeY)

	w, h = x1-x0, y1-y0
	if w <= 0 || h <= 0 {
		return 0, 0, 0, 0, false
	}
	return x0, y0, w, h, true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
