// Package fixture serves scenes and pixels from a JSON file. It backs local
// runs and tests where no remote zonal service or raster store is available.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/paulmach/orb"
)

// File is the on-disk fixture layout.
type File struct {
	Scenes []SceneRecord `json:"scenes"`
}

// SceneRecord is one scene of a collection with its pixel grid.
type SceneRecord struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	// Footprint is [minLon, minLat, maxLon, maxLat]; omitted means global.
	Footprint *[4]float64 `json:"footprint,omitempty"`
	// PixelSize is the cell size of Pixels; omitted means the native grid of
	// the collection's dataset profile.
	PixelSize *domain.CellSize `json:"pixel_size,omitempty"`
	Pixels    []domain.Pixel   `json:"pixels"`
}

// cellSize resolves the record's pixel size near lat, falling back to the
// dataset profile and then to a square pixel of resolution metres.
func (r SceneRecord) cellSize(lat, resolution float64) domain.CellSize {
	if r.PixelSize != nil {
		return *r.PixelSize
	}
	if ds, ok := domain.DatasetForCollection(r.Collection); ok {
		if c := ds.CellSize(lat); !c.IsZero() {
			return c
		}
	}
	if resolution > 0 {
		return domain.CellSizeMeters(resolution, lat)
	}
	return domain.CellSize{}
}

func (r SceneRecord) scene() domain.Scene {
	s := domain.Scene{ID: r.ID}
	if r.Footprint != nil {
		b := orb.Bound{
			Min: orb.Point{r.Footprint[0], r.Footprint[1]},
			Max: orb.Point{r.Footprint[2], r.Footprint[3]},
		}
		s.Footprint = &b
	}
	return s
}

// Source implements pipeline.SceneLister and domain.Sampler over fixture data.
type Source struct {
	scenes map[string]SceneRecord // collection|id
}

// Load reads a fixture file.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return New(f.Scenes)
}

// New builds a Source from in-memory records.
func New(records []SceneRecord) (*Source, error) {
	s := &Source{scenes: make(map[string]SceneRecord, len(records))}
	for _, r := range records {
		if r.ID == "" || r.Collection == "" {
			return nil, fmt.Errorf("fixture scene %q: collection and id are required", r.ID)
		}
		k := key(r.Collection, r.ID)
		if _, dup := s.scenes[k]; dup {
			return nil, fmt.Errorf("fixture scene %s: duplicate id", k)
		}
		s.scenes[k] = r
	}
	return s, nil
}

// Write encodes a fixture file.
func Write(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ListScenes returns the collection's scenes inside the query window that
// intersect a region, sorted by id.
func (s *Source) ListScenes(_ context.Context, q domain.SceneQuery) ([]domain.Scene, error) {
	var scenes []domain.Scene
	for _, r := range s.scenes {
		if r.Collection != q.Dataset.Collection || !q.Includes(r.ID) {
			continue
		}
		scenes = append(scenes, r.scene())
	}
	scenes = domain.FilterScenes(scenes, q.Regions)
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID < scenes[j].ID })
	return scenes, nil
}

// Sample computes the masked, scaled, coverage-weighted zonal mean from the
// scene's pixels.
func (s *Source) Sample(ctx context.Context, req domain.SampleRequest) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r, ok := s.scenes[key(req.Collection, req.Scene.ID)]
	if !ok {
		return 0, false, fmt.Errorf("scene %s not in fixture collection %s", req.Scene.ID, req.Collection)
	}
	cell := r.cellSize(req.Region.Location.Lat, req.Resolution)
	v, ok := domain.ZonalMean(r.Pixels, req.Region, req.Variable.Band, req.Variable.Factor(), cell, req.Mask)
	return v, ok, nil
}

func key(collection, id string) string {
	return collection + "|" + id
}
