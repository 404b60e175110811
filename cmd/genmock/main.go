// Command genmock writes a synthetic scene fixture for local runs and tests.
// Pixels are placed on the dataset's native grid around every plot (10 m for
// Sentinel-2, 1/24 degree cells aligned to the global TerraClimate grid) so the
// fixture source exercises the same masking, scaling, coverage weighting and
// merging as a real collection. With
// -expected-dir it also runs the domain pipeline over the fixture and writes
// the resulting CSV exports for comparison.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -dataset sentinel2 \
//	  -locations locations.csv \
//	  -start 2019-01-01 -end 2019-03-01 \
//	  -out data/mock/scenes.json \
//	  -expected-dir data/mock/expected
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	csvsink "github.com/couchcryptid/plot-timeseries-etl/internal/adapter/csv"
	"github.com/couchcryptid/plot-timeseries-etl/internal/adapter/fixture"
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/couchcryptid/plot-timeseries-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const dateLayout = "2006-01-02"

type options struct {
	dataset    string
	locations  string
	start, end time.Time
	stepDays   int
	grid       int
	spacing    float64
	cloudRate  float64
	seed       uint64
	out        string
	expected   string
	buffer     float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	opts, err := parseFlags()
	if err != nil {
		flag.Usage()
		return err
	}

	ds, err := domain.LookupDataset(opts.dataset)
	if err != nil {
		return err
	}
	locs, err := csvsink.ReadLocations(opts.locations)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	records := generate(ds, locs, opts, rng)
	if err := os.MkdirAll(filepath.Dir(opts.out), 0o755); err != nil {
		return err
	}
	if err := fixture.Write(opts.out, fixture.File{Scenes: records}); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d scenes for %d plots: %s", len(records), len(locs), opts.out)

	if opts.expected == "" {
		return nil
	}
	return writeExpected(ds, locs, records, opts)
}

func parseFlags() (options, error) {
	var o options
	var start, end string
	flag.StringVar(&o.dataset, "dataset", "sentinel2", "dataset profile")
	flag.StringVar(&o.locations, "locations", "locations.csv", "lon,lat CSV of plots")
	flag.StringVar(&start, "start", "2019-01-01", "first scene date (inclusive)")
	flag.StringVar(&end, "end", "2019-03-01", "last scene date (exclusive)")
	flag.IntVar(&o.stepDays, "step-days", 5, "revisit interval for daily datasets")
	flag.IntVar(&o.grid, "grid", 3, "pixels per side around each plot")
	flag.Float64Var(&o.spacing, "spacing", 0, "pixel spacing in meters (0 uses the dataset's native grid)")
	flag.Float64Var(&o.cloudRate, "cloud-rate", 0.2, "probability a plot is clouded in a scene")
	flag.Uint64Var(&o.seed, "seed", 42, "random seed")
	flag.StringVar(&o.out, "out", "data/mock/scenes.json", "fixture output path")
	flag.StringVar(&o.expected, "expected-dir", "", "directory for expected CSV exports (optional)")
	flag.Float64Var(&o.buffer, "buffer", domain.DefaultBufferMeters, "region buffer in meters for expected exports")
	flag.Parse()

	var err error
	if o.start, err = time.Parse(dateLayout, start); err != nil {
		return o, fmt.Errorf("invalid -start: %w", err)
	}
	if o.end, err = time.Parse(dateLayout, end); err != nil {
		return o, fmt.Errorf("invalid -end: %w", err)
	}
	if !o.end.After(o.start) {
		return o, fmt.Errorf("-end must be after -start")
	}
	if o.stepDays < 1 || o.grid < 1 || o.spacing < 0 {
		return o, fmt.Errorf("-step-days and -grid must be positive and -spacing non-negative")
	}
	return o, nil
}

// generate builds one scene per acquisition date. Every third daily date gets
// a second overlapping tile covering the even-numbered plots, so the fixture
// exercises same-day merging and footprint filtering.
func generate(ds domain.Dataset, locs []domain.Location, o options, rng *rand.Rand) []fixture.SceneRecord {
	var records []fixture.SceneRecord
	for i, day := range acquisitionDates(ds, o) {
		ids := []string{sceneID(ds, day, "T20MQE")}
		if ds.DateKeyLen == domain.DailyKeyLen && i%3 == 2 {
			ids = append(ids, sceneID(ds, day, "T20MQF"))
		}
		for tile, id := range ids {
			var covered []domain.Location
			for _, l := range locs {
				if tile == 0 || l.ID%2 == 0 {
					covered = append(covered, l)
				}
			}
			if len(covered) == 0 {
				continue
			}
			rec := fixture.SceneRecord{Collection: ds.Collection, ID: id}
			cell := cellSize(ds, covered[0], o)
			if o.spacing > 0 {
				rec.PixelSize = &cell
			}
			seen := make(map[orb.Point]bool)
			var bound orb.Bound
			for _, l := range covered {
				for _, px := range plotPixels(ds, l, day, o, rng) {
					p := orb.Point{px.Lon, px.Lat}
					if seen[p] {
						continue // plots sharing a coarse cell
					}
					seen[p] = true
					fp := cell.Footprint(p)
					if len(rec.Pixels) == 0 {
						bound = fp
					}
					bound = bound.Union(fp)
					rec.Pixels = append(rec.Pixels, px)
				}
			}
			if tile > 0 {
				fp := [4]float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()}
				rec.Footprint = &fp
			}
			records = append(records, rec)
		}
	}
	return records
}

func acquisitionDates(ds domain.Dataset, o options) []time.Time {
	var dates []time.Time
	if ds.DateKeyLen == domain.MonthlyKeyLen {
		for d := time.Date(o.start.Year(), o.start.Month(), 1, 0, 0, 0, 0, time.UTC); d.Before(o.end); d = d.AddDate(0, 1, 0) {
			if !d.Before(o.start) {
				dates = append(dates, d)
			}
		}
		return dates
	}
	for d := o.start; d.Before(o.end); d = d.AddDate(0, 0, o.stepDays) {
		dates = append(dates, d)
	}
	return dates
}

func sceneID(ds domain.Dataset, day time.Time, tile string) string {
	if ds.DateKeyLen == domain.MonthlyKeyLen {
		return day.Format("200601")
	}
	stamp := day.Format("20060102") + "T140051"
	return stamp + "_" + stamp + "_" + tile
}

// cellSize is the pixel size genmock lays out around l.
func cellSize(ds domain.Dataset, l domain.Location, o options) domain.CellSize {
	if o.spacing > 0 {
		return domain.CellSizeMeters(o.spacing, l.Lat)
	}
	if c := ds.CellSize(l.Lat); !c.IsZero() {
		return c
	}
	return domain.CellSizeMeters(10, l.Lat)
}

// pixelCentres returns grid x grid cell centres around l. Geographic grids are
// snapped to the global lattice, so the plot is generally off-centre in its
// cell; projected grids are centred on the plot.
func pixelCentres(ds domain.Dataset, l domain.Location, o options) []orb.Point {
	half := float64(o.grid-1) / 2
	centres := make([]orb.Point, 0, o.grid*o.grid)
	if o.spacing == 0 && ds.GridDegrees > 0 {
		g := ds.GridDegrees
		lon0 := (math.Floor(l.Lon/g) + 0.5) * g
		lat0 := (math.Floor(l.Lat/g) + 0.5) * g
		off := math.Floor(half)
		for gy := 0; gy < o.grid; gy++ {
			for gx := 0; gx < o.grid; gx++ {
				centres = append(centres, orb.Point{lon0 + (float64(gx)-off)*g, lat0 + (float64(gy)-off)*g})
			}
		}
		return centres
	}

	spacing := o.spacing
	if spacing == 0 {
		spacing = ds.NativeMeters
	}
	if spacing == 0 {
		spacing = 10
	}
	for gy := 0; gy < o.grid; gy++ {
		for gx := 0; gx < o.grid; gx++ {
			p := geo.PointAtBearingAndDistance(l.Point(), 90, (float64(gx)-half)*spacing)
			centres = append(centres, geo.PointAtBearingAndDistance(p, 0, (float64(gy)-half)*spacing))
		}
	}
	return centres
}

// plotPixels fills the cells around a plot. Band values follow a seasonal
// curve with noise; a clouded plot gets a high cloud probability on every
// pixel.
func plotPixels(ds domain.Dataset, l domain.Location, day time.Time, o options, rng *rand.Rand) []domain.Pixel {
	season := math.Sin(2 * math.Pi * float64(day.YearDay()) / 365)
	clouded := rng.Float64() < o.cloudRate

	centres := pixelCentres(ds, l, o)
	pixels := make([]domain.Pixel, 0, len(centres))
	for _, p := range centres {
		bands := make(map[string]float64, len(ds.Variables)+3)
		for i, v := range ds.Variables {
			base := 200 + 150*float64(i) + 10*float64(l.ID)
			bands[v.Band] = math.Round(base*(1+0.25*season) + rng.NormFloat64()*15)
		}
		if ds.Mask != nil {
			for _, b := range ds.Mask.AuxBands() {
				bands[b] = 0
			}
			if m, ok := ds.Mask.(domain.CloudShadowMask); ok {
				bands[m.ClassBand] = 4 // vegetation
				if clouded {
					bands[m.CloudBand] = 60 + math.Round(rng.Float64()*40)
				}
			}
		}
		pixels = append(pixels, domain.Pixel{Lon: p.Lon(), Lat: p.Lat(), Bands: bands})
	}
	return pixels
}

// writeExpected runs every variable over the generated fixture with a fixed
// clock and writes the CSV exports the etl job should reproduce.
func writeExpected(ds domain.Dataset, locs []domain.Location, records []fixture.SceneRecord, o options) error {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	src, err := fixture.New(records)
	if err != nil {
		return err
	}
	regions, err := domain.BuildRegions(locs, o.buffer)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sink, err := csvsink.NewSink(o.expected, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	q := domain.SceneQuery{Dataset: ds, Regions: regions, Start: o.start, End: o.end}
	scenes, err := src.ListScenes(ctx, q)
	if err != nil {
		return err
	}
	for _, v := range ds.Variables {
		obs, err := domain.SampleZonal(ctx, src, ds, v, scenes, regions, 1)
		if err != nil {
			return err
		}
		exp := pipeline.Transform("expected", ds, v, obs)
		if err := sink.Load(ctx, exp); err != nil {
			return err
		}
		log.Printf("%s: %d tall rows, %d wide columns", v.Name, len(exp.Tall), len(exp.Columns))
	}
	log.Printf("wrote expected exports: %s", o.expected)
	return nil
}
