package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// RegionIDPrefix is prepended to a location's index to form its region id.
const RegionIDPrefix = "polygon_"

// DefaultBufferMeters is the buffer radius used around each plot centroid.
const DefaultBufferMeters = 50.0

var (
	// ErrInvalidCoordinate is returned for coordinates outside WGS-84 range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidBuffer is returned for a non-positive buffer radius.
	ErrInvalidBuffer = errors.New("invalid buffer radius")
)

// Location is an input plot centroid. ID is its position in the input list.
type Location struct {
	ID  int
	Lon float64
	Lat float64
}

// Point returns the location as an orb point (lon, lat order).
func (l Location) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}

// Region is the sampling footprint derived from a Location.
type Region struct {
	ID       string
	Location Location
	Bound    orb.Bound
}

// Polygon returns the region's bounding box as a closed polygon.
func (r Region) Polygon() orb.Polygon {
	return r.Bound.ToPolygon()
}

// Contains reports whether p lies inside the region, edges included.
func (r Region) Contains(p orb.Point) bool {
	return r.Bound.Contains(p)
}

// NewLocations validates coordinate pairs given as (longitude, latitude) and
// assigns ids in input order. The first invalid pair aborts with an error
// wrapping ErrInvalidCoordinate.
func NewLocations(pairs [][2]float64) ([]Location, error) {
	locs := make([]Location, 0, len(pairs))
	for i, p := range pairs {
		if err := validateCoordinate(p[0], p[1]); err != nil {
			return nil, fmt.Errorf("location %d: %w", i, err)
		}
		locs = append(locs, Location{ID: i, Lon: p[0], Lat: p[1]})
	}
	return locs, nil
}

// BuildRegions buffers every location by bufferMeters and takes the
// axis-aligned bounding box of the result. One region is produced per location,
// in input order.
func BuildRegions(locs []Location, bufferMeters float64) ([]Region, error) {
	if bufferMeters <= 0 || math.IsNaN(bufferMeters) || math.IsInf(bufferMeters, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBuffer, bufferMeters)
	}

	regions := make([]Region, 0, len(locs))
	seen := make(map[string]struct{}, len(locs))
	for _, loc := range locs {
		if err := validateCoordinate(loc.Lon, loc.Lat); err != nil {
			return nil, fmt.Errorf("location %d: %w", loc.ID, err)
		}
		id := RegionID(loc.ID)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate region id %q", id)
		}
		seen[id] = struct{}{}

		regions = append(regions, Region{
			ID:       id,
			Location: loc,
			Bound:    geo.NewBoundAroundPoint(loc.Point(), bufferMeters),
		})
	}
	return regions, nil
}

// RegionID returns the region id for the location at index i.
func RegionID(i int) string {
	return RegionIDPrefix + strconv.Itoa(i)
}

// RegionsBound returns the union of all region bounds. The second return value
// is false when regions is empty.
func RegionsBound(regions []Region) (orb.Bound, bool) {
	if len(regions) == 0 {
		return orb.Bound{}, false
	}
	b := regions[0].Bound
	for _, r := range regions[1:] {
		b = b.Union(r.Bound)
	}
	return b, true
}

func validateCoordinate(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("%w: (%v, %v) is not finite", ErrInvalidCoordinate, lon, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, lat)
	}
	return nil
}
