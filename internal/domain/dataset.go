package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnknownDataset is returned by LookupDataset for an unregistered profile.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrUnknownVariable is returned when a variable is not part of a dataset.
	ErrUnknownVariable = errors.New("unknown variable")
)

// Date key lengths for daily and monthly scene ids.
const (
	DailyKeyLen   = 8
	MonthlyKeyLen = 6
)

// Variable is one exported band or climate variable.
type Variable struct {
	// Name is the export name and the value column of the tall table.
	Name string
	// Band is the source band read from each scene.
	Band string
	// Description is the long canonical name, e.g. "Actual_evapotranspiration".
	Description string
	// Scale multiplies every pixel before averaging. Zero means 1.
	Scale float64
}

// Factor returns the effective scale factor.
func (v Variable) Factor() float64 {
	if v.Scale == 0 {
		return 1
	}
	return v.Scale
}

// Dataset is a source collection profile: where scenes come from, how they are
// masked, and which variables are exported from them.
type Dataset struct {
	Name       string
	Collection string
	Start      time.Time
	End        time.Time
	// Resolution is the linear pixel size passed to zonal aggregation.
	Resolution float64
	// GridDegrees is the native cell size of a geographic grid. Zero means
	// square pixels of NativeMeters.
	GridDegrees float64
	// NativeMeters is the native pixel side of a projected collection.
	NativeMeters float64
	// DateKeyLen is the scene id prefix length that forms the date key.
	DateKeyLen int
	Mask       MaskPolicy
	Variables  []Variable
}

// Variable returns the named variable.
func (d Dataset) Variable(name string) (Variable, error) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, nil
		}
	}
	return Variable{}, fmt.Errorf("%w: %q in dataset %s", ErrUnknownVariable, name, d.Name)
}

// Select returns the named variables in the order given. An empty list selects
// every variable of the dataset.
func (d Dataset) Select(names []string) ([]Variable, error) {
	if len(names) == 0 {
		return append([]Variable(nil), d.Variables...), nil
	}
	out := make([]Variable, 0, len(names))
	for _, n := range names {
		v, err := d.Variable(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CellSize returns the dataset's native pixel size in degrees at latitude lat.
// It is zero when the profile declares neither grid.
func (d Dataset) CellSize(lat float64) CellSize {
	switch {
	case d.GridDegrees > 0:
		return CellSize{Lon: d.GridDegrees, Lat: d.GridDegrees}
	case d.NativeMeters > 0:
		return CellSizeMeters(d.NativeMeters, lat)
	}
	return CellSize{}
}

// DatasetForCollection returns the profile whose collection id matches.
func DatasetForCollection(collection string) (Dataset, bool) {
	for _, ds := range datasets {
		if ds.Collection == collection {
			return ds, true
		}
	}
	return Dataset{}, false
}

// DateKey truncates a scene id to the dataset's date key length.
func (d Dataset) DateKey(sceneID string) string {
	return truncateKey(sceneID, d.DateKeyLen)
}

var datasets = map[string]Dataset{
	"sentinel2": {
		Name:         "sentinel2",
		Collection:   "COPERNICUS/S2_SR",
		Start:        time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2022, time.December, 31, 0, 0, 0, 0, time.UTC),
		Resolution:   10,
		NativeMeters: 10,
		DateKeyLen:   DailyKeyLen,
		Mask:         Sentinel2Mask,
		Variables: []Variable{
			{Name: "red", Band: "B4", Description: "red", Scale: 1},
			{Name: "blue", Band: "B2", Description: "blue", Scale: 1},
			{Name: "green", Band: "B3", Description: "green", Scale: 1},
			{Name: "red_edge1", Band: "B5", Description: "red_edge1", Scale: 1},
			{Name: "red_edge2", Band: "B6", Description: "red_edge2", Scale: 1},
			{Name: "red_edge3", Band: "B7", Description: "red_edge3", Scale: 1},
			{Name: "nir", Band: "B8", Description: "nir", Scale: 1},
			{Name: "red_edge4", Band: "B8A", Description: "red_edge4", Scale: 1},
			{Name: "swir1", Band: "B11", Description: "swir1", Scale: 1},
			{Name: "swir2", Band: "B12", Description: "swir2", Scale: 1},
		},
	},
	"terraclimate": {
		Name:        "terraclimate",
		Collection:  "IDAHO_EPSCOR/TERRACLIMATE",
		Start:       time.Date(1958, time.January, 1, 0, 0, 0, 0, time.UTC),
		Resolution:  0.1,
		GridDegrees: 1.0 / 24,
		DateKeyLen:  MonthlyKeyLen,
		Mask:        NoMask{},
		Variables: []Variable{
			{Name: "aet", Band: "aet", Description: "Actual_evapotranspiration", Scale: 0.1},
			{Name: "def", Band: "def", Description: "Climate_water_deficit", Scale: 0.1},
			{Name: "pdsi", Band: "pdsi", Description: "Palmer_Drought_Severity_Index", Scale: 0.01},
			{Name: "pet", Band: "pet", Description: "Reference_evapotranspiration", Scale: 0.1},
			{Name: "pr", Band: "pr", Description: "Precipitation_accumulation", Scale: 1},
			{Name: "ro", Band: "ro", Description: "Runoff", Scale: 1},
			{Name: "soil", Band: "soil", Description: "Soil_moisture", Scale: 0.1},
			{Name: "srad", Band: "srad", Description: "Downward_surface_shortwave_radiation", Scale: 0.1},
			{Name: "tmmn", Band: "tmmn", Description: "Minimum_temperature", Scale: 0.1},
			{Name: "tmmx", Band: "tmmx", Description: "Maximum_temperature", Scale: 0.1},
			{Name: "vap", Band: "vap", Description: "Vapor_pressure", Scale: 0.001},
			{Name: "vpd", Band: "vpd", Description: "Vapor_pressure_deficit", Scale: 0.01},
			{Name: "vs", Band: "vs", Description: "Wind-speed__10m", Scale: 0.01},
		},
	},
}

// LookupDataset returns a copy of the named dataset profile.
func LookupDataset(name string) (Dataset, error) {
	ds, ok := datasets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownDataset, name, strings.Join(DatasetNames(), ", "))
	}
	ds.Variables = append([]Variable(nil), ds.Variables...)
	return ds, nil
}

// DatasetNames lists the registered profiles, sorted.
func DatasetNames() []string {
	names := make([]string, 0, len(datasets))
	for n := range datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
