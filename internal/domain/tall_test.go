package domain

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

const (
	granuleA = "20190105T140051_20190105T140051_T20MQE"
	granuleB = "20190105T140051_20190105T140053_T20MQF"
	granuleC = "20190110T140049_20190110T140049_T20MQE"
)

func TestAssembleTall_DropsSentinels(t *testing.T) {
	obs := []Observation{
		{RegionID: "polygon_0", SceneID: granuleA, Value: 812},
		{RegionID: "polygon_1", SceneID: granuleA, Value: Sentinel},
	}

	rows := AssembleTall(obs, DailyKeyLen)

	assert.Equal(t, []TallRow{{RegionID: "polygon_0", DateKey: "20190105", Value: 812}}, rows)
}

func TestAssembleTall_DeduplicatesByEarliestScene(t *testing.T) {
	obs := []Observation{
		{RegionID: "polygon_0", SceneID: granuleB, Value: 7},
		{RegionID: "polygon_0", SceneID: granuleA, Value: 5},
		{RegionID: "polygon_0", SceneID: granuleC, Value: 9},
	}

	rows := AssembleTall(obs, DailyKeyLen)

	want := []TallRow{
		{RegionID: "polygon_0", DateKey: "20190105", Value: 5},
		{RegionID: "polygon_0", DateKey: "20190110", Value: 9},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("tall mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleTall_SentinelDoesNotShadowRealValue(t *testing.T) {
	// The sentinel scene id sorts first but must not win the (region, date) slot.
	obs := []Observation{
		{RegionID: "polygon_0", SceneID: granuleA, Value: Sentinel},
		{RegionID: "polygon_0", SceneID: granuleB, Value: 7},
	}

	rows := AssembleTall(obs, DailyKeyLen)

	assert.Equal(t, []TallRow{{RegionID: "polygon_0", DateKey: "20190105", Value: 7}}, rows)
}

func TestAssembleTall_SortsLexicographically(t *testing.T) {
	obs := []Observation{
		{RegionID: "polygon_2", SceneID: granuleA, Value: 1},
		{RegionID: "polygon_10", SceneID: granuleA, Value: 2},
		{RegionID: "polygon_1", SceneID: granuleC, Value: 3},
		{RegionID: "polygon_1", SceneID: granuleA, Value: 4},
	}

	rows := AssembleTall(obs, DailyKeyLen)

	got := make([]string, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.RegionID+"/"+r.DateKey)
	}
	assert.Equal(t, []string{
		"polygon_1/20190105",
		"polygon_1/20190110",
		"polygon_10/20190105",
		"polygon_2/20190105",
	}, got)
}

func TestAssembleTall_MonthlyKeys(t *testing.T) {
	obs := []Observation{
		{RegionID: "polygon_0", SceneID: "201901", Value: 31.5},
		{RegionID: "polygon_0", SceneID: "201902", Value: 30.25},
	}

	rows := AssembleTall(obs, MonthlyKeyLen)

	assert.Equal(t, []TallRow{
		{RegionID: "polygon_0", DateKey: "201901", Value: 31.5},
		{RegionID: "polygon_0", DateKey: "201902", Value: 30.25},
	}, rows)
}

func TestAssembleTall_OrderIndependent(t *testing.T) {
	obs := []Observation{
		{RegionID: "polygon_0", SceneID: granuleA, Value: 5},
		{RegionID: "polygon_0", SceneID: granuleB, Value: 7},
		{RegionID: "polygon_1", SceneID: granuleA, Value: Sentinel},
		{RegionID: "polygon_1", SceneID: granuleB, Value: 3},
		{RegionID: "polygon_1", SceneID: granuleC, Value: 4},
	}
	want := AssembleTall(obs, DailyKeyLen)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]Observation(nil), obs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, AssembleTall(shuffled, DailyKeyLen))
	}
}

func TestAssembleTall_Empty(t *testing.T) {
	assert.Empty(t, AssembleTall(nil, DailyKeyLen))
}
