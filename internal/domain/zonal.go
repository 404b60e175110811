package domain

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// SampleRequest asks a collaborator for the mean of one variable over one
// region in one scene.
type SampleRequest struct {
	Collection string
	Scene      Scene
	Region     Region
	Variable   Variable
	Resolution float64
	Mask       MaskPolicy
}

// Sampler computes zonal means. ok is false when the scene has no valid pixel
// inside the region; errors are reserved for collaborator failures.
type Sampler interface {
	Sample(ctx context.Context, req SampleRequest) (value float64, ok bool, err error)
}

// Pixel is one raster cell with its band values and centre coordinate.
// Bands absent from the map are nodata.
type Pixel struct {
	Lon   float64            `json:"lon"`
	Lat   float64            `json:"lat"`
	Bands map[string]float64 `json:"bands"`
}

// CellSize is the width and height of a pixel in degrees.
type CellSize struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// CellSizeMeters converts a square pixel with the given side in metres to
// degrees at latitude lat.
func CellSizeMeters(side, lat float64) CellSize {
	b := geo.NewBoundAroundPoint(orb.Point{0, lat}, side/2)
	return CellSize{Lon: b.Max.Lon() - b.Min.Lon(), Lat: b.Max.Lat() - b.Min.Lat()}
}

// IsZero reports whether the size is unknown.
func (c CellSize) IsZero() bool {
	return c.Lon <= 0 || c.Lat <= 0
}

// Footprint returns the cell centred on p.
func (c CellSize) Footprint(p orb.Point) orb.Bound {
	return orb.Bound{
		Min: orb.Point{p.Lon() - c.Lon/2, p.Lat() - c.Lat/2},
		Max: orb.Point{p.Lon() + c.Lon/2, p.Lat() + c.Lat/2},
	}
}

// coverage returns the fraction of the pixel's cell that lies inside the
// region. With an unknown cell size a pixel counts fully when its centre is
// inside the region.
func coverage(px Pixel, region Region, cell CellSize) float64 {
	centre := orb.Point{px.Lon, px.Lat}
	if cell.IsZero() {
		if region.Contains(centre) {
			return 1
		}
		return 0
	}
	fp := cell.Footprint(centre)
	w := math.Min(fp.Max.Lon(), region.Bound.Max.Lon()) - math.Max(fp.Min.Lon(), region.Bound.Min.Lon())
	h := math.Min(fp.Max.Lat(), region.Bound.Max.Lat()) - math.Max(fp.Min.Lat(), region.Bound.Min.Lat())
	if w <= 0 || h <= 0 {
		return 0
	}
	return (w * h) / (cell.Lon * cell.Lat)
}

// ZonalMean averages band over the pixels whose cell overlaps region and that
// pass the mask. Each pixel is weighted by the fraction of its cell inside the
// region, so a coarse cell that contains the whole region still contributes.
// Values are scaled before averaging.
func ZonalMean(pixels []Pixel, region Region, band string, scale float64, cell CellSize, mask MaskPolicy) (float64, bool) {
	if mask == nil {
		mask = NoMask{}
	}
	values := make([]float64, 0, len(pixels))
	weights := make([]float64, 0, len(pixels))
	for _, px := range pixels {
		w := coverage(px, region, cell)
		if w <= 0 {
			continue
		}
		v, ok := px.Bands[band]
		if !ok || !mask.Valid(px.Bands) {
			continue
		}
		values = append(values, v*scale)
		weights = append(weights, w)
	}
	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(values, weights), true
}

// FilterScenes keeps the scenes whose footprint overlaps at least one region.
func FilterScenes(scenes []Scene, regions []Region) []Scene {
	out := make([]Scene, 0, len(scenes))
	for _, s := range scenes {
		for _, r := range regions {
			if s.Intersects(r) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// SampleZonal produces exactly one observation per (scene, region) pair.
// Pairs whose scene does not cover the region, or where the sampler finds no
// valid pixel, get the Sentinel value. Observations are ordered by scene then
// region, independent of completion order. concurrency bounds the number of
// in-flight sampler calls; values below 1 run sequentially.
func SampleZonal(ctx context.Context, sampler Sampler, ds Dataset, v Variable, scenes []Scene, regions []Region, concurrency int) ([]Observation, error) {
	obs := make([]Observation, len(scenes)*len(regions))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency < 1 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for si, scene := range scenes {
		for ri, region := range regions {
			idx := si*len(regions) + ri
			obs[idx] = Observation{
				RegionID: region.ID,
				SceneID:  scene.ID,
				DateKey:  ds.DateKey(scene.ID),
				Variable: v.Name,
				Value:    Sentinel,
			}
			if !scene.Intersects(region) {
				continue
			}

			g.Go(func() error {
				value, ok, err := sampler.Sample(gctx, SampleRequest{
					Collection: ds.Collection,
					Scene:      scene,
					Region:     region,
					Variable:   v,
					Resolution: ds.Resolution,
					Mask:       ds.Mask,
				})
				if err != nil {
					return fmt.Errorf("sample %s scene %s region %s: %w", v.Name, scene.ID, region.ID, err)
				}
				if ok {
					obs[idx].Value = value
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return obs, nil
}
