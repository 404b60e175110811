package domain

import "sort"

// AssembleTall builds the tall export table from one variable's observations.
//
// Sentinel observations are dropped. When several observations share a
// (region, date) pair, the one with the lexicographically smallest scene id is
// kept, so the result does not depend on input order. Rows are sorted by
// region id, then date key.
func AssembleTall(obs []Observation, dateKeyLen int) []TallRow {
	type key struct{ region, date string }
	type pick struct {
		sceneID string
		value   float64
	}

	chosen := make(map[key]pick, len(obs))
	for _, o := range obs {
		if o.Missing() {
			continue
		}
		k := key{region: o.RegionID, date: truncateKey(o.SceneID, dateKeyLen)}
		if cur, ok := chosen[k]; ok && cur.sceneID <= o.SceneID {
			continue
		}
		chosen[k] = pick{sceneID: o.SceneID, value: o.Value}
	}

	rows := make([]TallRow, 0, len(chosen))
	for k, p := range chosen {
		rows = append(rows, TallRow{RegionID: k.region, DateKey: k.date, Value: p.value})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RegionID != rows[j].RegionID {
			return rows[i].RegionID < rows[j].RegionID
		}
		return rows[i].DateKey < rows[j].DateKey
	})
	return rows
}
