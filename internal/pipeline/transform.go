package pipeline

import (
	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
)

// Transform turns one variable's raw observations into its tall and wide
// export tables. The wide table is pivoted by scene id and then merged to one
// column per day; monthly scene ids are shorter than a day key and keep their
// own column.
func Transform(runID string, ds domain.Dataset, v domain.Variable, obs []domain.Observation) domain.Export {
	tall := domain.AssembleTall(obs, ds.DateKeyLen)
	wide := domain.MergeSameDay(domain.Pivot(obs), domain.DailyKeyLen)
	return domain.NewExport(runID, ds, v, tall, wide)
}
