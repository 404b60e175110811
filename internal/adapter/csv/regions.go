package csv

import (
	"fmt"
	"os"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// RegionsFile is the name WriteRegions uses inside the output directory.
const RegionsFile = "regions.geojson"

// RegionsCollection converts regions to a GeoJSON feature collection with the
// region id and source coordinates as properties.
func RegionsCollection(regions []domain.Region) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		f := geojson.NewFeature(r.Polygon())
		f.ID = r.ID
		f.Properties["id"] = r.ID
		f.Properties["lon"] = r.Location.Lon
		f.Properties["lat"] = r.Location.Lat
		fc.Append(f)
	}
	return fc
}

// WriteRegions writes the regions as GeoJSON to path.
func WriteRegions(path string, regions []domain.Region) error {
	data, err := RegionsCollection(regions).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode regions: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write regions: %w", err)
	}
	return nil
}
