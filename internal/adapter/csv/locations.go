package csv

import (
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
)

// ReadLocations reads "lon,lat" rows from a file. A non-numeric first row is
// treated as a header; blank lines and lines starting with # are skipped.
func ReadLocations(path string) ([]domain.Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open locations: %w", err)
	}
	defer f.Close()

	locs, err := ParseLocations(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return locs, nil
}

// ParseLocations is ReadLocations over a reader.
func ParseLocations(r io.Reader) ([]domain.Location, error) {
	cr := stdcsv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var pairs [][2]float64
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read locations: %w", err)
		}
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errLon != nil || errLat != nil {
			if row == 0 {
				continue
			}
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w: %q,%q", line, domain.ErrInvalidCoordinate, rec[0], rec[1])
		}
		pairs = append(pairs, [2]float64{lon, lat})
	}
	if len(pairs) == 0 {
		return nil, errors.New("no locations")
	}
	return domain.NewLocations(pairs)
}
