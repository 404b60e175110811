// Package geotiff samples scenes stored as local GeoTIFF files, one file per
// scene under <dir>/<dataset>/<scene id>.tif. Rasters must be north-up in
// EPSG:4326; bands are matched by their GDAL description (e.g. "B4", "SCL").
package geotiff

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
)

const ext = ".tif"

var registerOnce sync.Once

// handle is one open dataset. GDAL datasets are not safe for concurrent use,
// so every read holds mu; closed is set when the handle leaves the cache.
type handle struct {
	mu     sync.Mutex
	ds     *godal.Dataset
	grid   grid
	bands  map[string]int // description -> band index
	nodata map[int]float64
	closed bool
}

func (h *handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.ds.Close()
}

// Source implements pipeline.SceneLister and domain.Sampler over GeoTIFFs.
type Source struct {
	dir    string
	cache  *lruCache
	logger *slog.Logger
}

// NewSource creates a GeoTIFF source rooted at dir, keeping at most
// maxOpen datasets open.
func NewSource(dir string, maxOpen int, logger *slog.Logger) *Source {
	registerOnce.Do(godal.RegisterAll)
	return &Source{dir: dir, cache: newLRUCache(maxOpen), logger: logger}
}

// Close releases every cached dataset.
func (s *Source) Close() error {
	var firstErr error
	for _, h := range s.cache.drain() {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ListScenes returns the dataset's scenes inside the query window whose
// raster extent intersects a region, sorted by id.
func (s *Source) ListScenes(_ context.Context, q domain.SceneQuery) ([]domain.Scene, error) {
	dir := filepath.Join(s.dir, q.Dataset.Name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var scenes []domain.Scene
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !q.Includes(id) {
			continue
		}

		var footprint domain.Scene
		err := s.withDataset(filepath.Join(dir, e.Name()), func(h *handle) error {
			b := h.grid.bound()
			footprint = domain.Scene{ID: id, Footprint: &b}
			return nil
		})
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, footprint)
	}

	scenes = domain.FilterScenes(scenes, q.Regions)
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID < scenes[j].ID })
	return scenes, nil
}

// Sample reads the region's pixel window for the variable band and the mask's
// auxiliary bands and averages the valid pixels, weighted by how much of each
// cell the region covers. Nodata cells count as missing bands.
func (s *Source) Sample(ctx context.Context, req domain.SampleRequest) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	datasetDir := s.datasetDir(req.Collection)
	path := filepath.Join(datasetDir, req.Scene.ID+ext)

	wanted := []string{req.Variable.Band}
	if req.Mask != nil {
		wanted = append(wanted, req.Mask.AuxBands()...)
	}

	var (
		pixels []domain.Pixel
		cell   domain.CellSize
	)
	err := s.withDataset(path, func(h *handle) error {
		cell = h.grid.cellSize()
		x0, y0, w, ht, ok := h.grid.window(req.Region.Bound)
		if !ok {
			return nil
		}
		var err error
		pixels, err = readPixels(h, wanted, x0, y0, w, ht)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", path, err)
	}

	v, ok := domain.ZonalMean(pixels, req.Region, req.Variable.Band, req.Variable.Factor(), cell, req.Mask)
	return v, ok, nil
}

// datasetDir resolves the directory for a collection id by matching it to a
// registered dataset profile, falling back to a sanitised collection name.
func (s *Source) datasetDir(collection string) string {
	if ds, ok := domain.DatasetForCollection(collection); ok {
		return filepath.Join(s.dir, ds.Name)
	}
	return filepath.Join(s.dir, strings.ReplaceAll(collection, "/", "_"))
}

func readPixels(h *handle, wanted []string, x0, y0, w, ht int) ([]domain.Pixel, error) {
	bands := h.ds.Bands()
	values := make(map[string][]float64, len(wanted))
	for _, name := range wanted {
		idx, ok := h.bands[name]
		if !ok {
			continue // absent band: every pixel misses it
		}
		buf := make([]float64, w*ht)
		if err := bands[idx].Read(x0, y0, buf, w, ht); err != nil {
			return nil, fmt.Errorf("band %s: %w", name, err)
		}
		values[name] = buf
	}

	pixels := make([]domain.Pixel, 0, w*ht)
	for row := 0; row < ht; row++ {
		for col := 0; col < w; col++ {
			i := row*w + col
			px := domain.Pixel{Bands: make(map[string]float64, len(values))}
			c := h.grid.center(x0+col, y0+row)
			px.Lon, px.Lat = c.Lon(), c.Lat()
			for name, buf := range values {
				if nd, ok := h.nodata[h.bands[name]]; ok && buf[i] == nd {
					continue
				}
				px.Bands[name] = buf[i]
			}
			pixels = append(pixels, px)
		}
	}
	return pixels, nil
}

// withDataset runs fn with exclusive access to the open dataset at path,
// reopening it if it was evicted between lookup and lock.
func (s *Source) withDataset(path string, fn func(h *handle) error) error {
	for {
		h, err := s.acquire(path)
		if err != nil {
			return err
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			continue
		}
		err = fn(h)
		h.mu.Unlock()
		return err
	}
}

func (s *Source) acquire(path string) (*handle, error) {
	if h, ok := s.cache.get(path); ok {
		return h, nil
	}
	h, err := openHandle(path)
	if err != nil {
		return nil, err
	}
	cached, toClose := s.cache.putIfAbsent(path, h)
	for _, old := range toClose {
		if err := old.close(); err != nil {
			s.logger.Warn("close raster failed", "error", err)
		}
	}
	return cached, nil
}

func openHandle(path string) (*handle, error) {
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("geotransform %s: %w", path, err)
	}
	st := ds.Structure()
	g, err := newGrid(gt, st.SizeX, st.SizeY)
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	h := &handle{ds: ds, grid: g, bands: map[string]int{}, nodata: map[int]float64{}}
	for i, b := range ds.Bands() {
		name := strings.TrimSpace(b.Description())
		if name == "" {
			name = "band_" + strconv.Itoa(i+1)
		}
		h.bands[name] = i
		if nd, ok := b.NoData(); ok {
			h.nodata[i] = nd
		}
	}
	return h, nil
}
