package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupDataset(t *testing.T) {
	t.Run("sentinel2", func(t *testing.T) {
		ds, err := LookupDataset("Sentinel2")
		require.NoError(t, err)
		assert.Equal(t, "COPERNICUS/S2_SR", ds.Collection)
		assert.Equal(t, DailyKeyLen, ds.DateKeyLen)
		assert.Equal(t, 10.0, ds.Resolution)
		assert.Len(t, ds.Variables, 10)

		nir, err := ds.Variable("nir")
		require.NoError(t, err)
		assert.Equal(t, "B8", nir.Band)
		assert.Equal(t, 1.0, nir.Factor())
	})

	t.Run("terraclimate scale factors", func(t *testing.T) {
		ds, err := LookupDataset("terraclimate")
		require.NoError(t, err)
		assert.Equal(t, MonthlyKeyLen, ds.DateKeyLen)

		tests := map[string]float64{
			"aet": 0.1, "pdsi": 0.01, "pr": 1, "vap": 0.001, "vpd": 0.01, "vs": 0.01, "tmmn": 0.1,
		}
		for name, scale := range tests {
			v, err := ds.Variable(name)
			require.NoError(t, err, name)
			assert.Equal(t, scale, v.Factor(), name)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := LookupDataset("landsat")
		require.ErrorIs(t, err, ErrUnknownDataset)
		assert.Contains(t, err.Error(), "sentinel2, terraclimate")
	})

	t.Run("returns a copy", func(t *testing.T) {
		a, err := LookupDataset("sentinel2")
		require.NoError(t, err)
		a.Variables[0].Name = "mutated"
		b, err := LookupDataset("sentinel2")
		require.NoError(t, err)
		assert.Equal(t, "red", b.Variables[0].Name)
	})
}

func TestDatasetSelect(t *testing.T) {
	ds, err := LookupDataset("sentinel2")
	require.NoError(t, err)

	all, err := ds.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(ds.Variables))

	some, err := ds.Select([]string{"swir1", " red "})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "B11", some[0].Band)
	assert.Equal(t, "B4", some[1].Band)

	_, err = ds.Select([]string{"tmmx"})
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestVariableFactorDefault(t *testing.T) {
	assert.Equal(t, 1.0, Variable{}.Factor())
}

func TestSentinel2Mask(t *testing.T) {
	clear := map[string]float64{"MSK_CLDPRB": 0, "MSK_SNWPRB": 0, "SCL": 4}

	tests := []struct {
		name  string
		bands map[string]float64
		valid bool
	}{
		{"clear vegetation", clear, true},
		{"cloud probability at threshold", withBand(clear, "MSK_CLDPRB", 5), false},
		{"cloud probability below threshold", withBand(clear, "MSK_CLDPRB", 4), true},
		{"snow", withBand(clear, "MSK_SNWPRB", 60), false},
		{"cloud shadow", withBand(clear, "SCL", 3), false},
		{"cirrus", withBand(clear, "SCL", 10), false},
		{"water", withBand(clear, "SCL", 6), true},
		{"missing classification", map[string]float64{"MSK_CLDPRB": 0, "MSK_SNWPRB": 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, Sentinel2Mask.Valid(tt.bands))
		})
	}

	assert.Equal(t, []string{"MSK_CLDPRB", "MSK_SNWPRB", "SCL"}, Sentinel2Mask.AuxBands())
	assert.True(t, NoMask{}.Valid(nil))
}

func TestNewExport(t *testing.T) {
	fixed := time.Date(2024, 4, 26, 12, 30, 45, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	ds, err := LookupDataset("sentinel2")
	require.NoError(t, err)
	v, err := ds.Variable("red")
	require.NoError(t, err)

	wide := []WideRow{{RegionID: "polygon_0", Values: map[string]*float64{"20190105": ptr(7), "20190101": nil}}}
	exp := NewExport("run-1", ds, v, nil, wide)

	assert.Equal(t, fixed, exp.ExportedAt)
	assert.Equal(t, "sentinel2", exp.Dataset)
	assert.Equal(t, []string{"20190101", "20190105"}, exp.Columns)
	assert.Equal(t, "red_time_series_multiple_tall", exp.BaseName(TableTall))
	assert.Equal(t, "red_time_series_multiple_wide", exp.BaseName(TableWide))
}

func TestDataset_CellSize(t *testing.T) {
	tc, err := LookupDataset("terraclimate")
	require.NoError(t, err)
	assert.Equal(t, CellSize{Lon: 1.0 / 24, Lat: 1.0 / 24}, tc.CellSize(-2.3))

	s2, err := LookupDataset("sentinel2")
	require.NoError(t, err)
	assert.Equal(t, CellSizeMeters(10, -2.3), s2.CellSize(-2.3))

	assert.True(t, Dataset{}.CellSize(0).IsZero())
}

func TestDatasetForCollection(t *testing.T) {
	ds, ok := DatasetForCollection("IDAHO_EPSCOR/TERRACLIMATE")
	require.True(t, ok)
	assert.Equal(t, "terraclimate", ds.Name)

	_, ok = DatasetForCollection("LANDSAT/LC08")
	assert.False(t, ok)
}
