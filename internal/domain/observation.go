package domain

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Sentinel marks an observation for which no zonal mean could be computed.
const Sentinel = -9999.0

// Table kinds used in export names.
const (
	TableTall = "tall"
	TableWide = "wide"
)

// Scene is one timestamped image or grid snapshot from a source collection.
type Scene struct {
	ID string `json:"id"`
	// Footprint is the scene's extent. Nil means the extent is unknown and the
	// scene is assumed to cover every region.
	Footprint *orb.Bound `json:"-"`
}

// Intersects reports whether the scene footprint overlaps the region.
func (s Scene) Intersects(r Region) bool {
	if s.Footprint == nil {
		return true
	}
	return s.Footprint.Intersects(r.Bound)
}

// Observation is one zonal mean of a variable over a region for one scene.
// Value is Sentinel when the scene produced nothing for the region.
type Observation struct {
	RegionID string
	SceneID  string
	DateKey  string
	Variable string
	Value    float64
}

// Missing reports whether the observation carries the sentinel value.
func (o Observation) Missing() bool {
	return o.Value == Sentinel
}

// TallRow is one exported (region, date, value) triple.
type TallRow struct {
	RegionID string  `json:"region_id"`
	DateKey  string  `json:"date"`
	Value    float64 `json:"value"`
}

// WideRow holds every value observed for one region keyed by column name
// (scene id before same-day merge, day key after). A nil value is the missing
// marker; an absent key means no observation for that column.
type WideRow struct {
	RegionID string              `json:"region_id"`
	Values   map[string]*float64 `json:"values"`
}

// Export is the result of one variable pipeline, handed to every sink.
type Export struct {
	RunID      string
	Dataset    string
	Variable   Variable
	Tall       []TallRow
	Wide       []WideRow
	Columns    []string
	ExportedAt time.Time
}

// BaseName returns the export file name (without extension) for a table kind.
func (e Export) BaseName(kind string) string {
	return ExportBaseName(e.Variable.Name, kind)
}

// ExportBaseName returns "{variable}_time_series_multiple_{kind}".
func ExportBaseName(variable, kind string) string {
	return fmt.Sprintf("%s_time_series_multiple_%s", variable, kind)
}

// NewExport stamps tall and wide tables with the run id and export time.
func NewExport(runID string, ds Dataset, v Variable, tall []TallRow, wide []WideRow) Export {
	return Export{
		RunID:      runID,
		Dataset:    ds.Name,
		Variable:   v,
		Tall:       tall,
		Wide:       wide,
		Columns:    WideColumns(wide),
		ExportedAt: clock.Now().UTC(),
	}
}

func truncateKey(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
