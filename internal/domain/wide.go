package domain

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Pivot groups observations by region and spreads them into one column per
// scene id. Sentinel values are carried through unchanged; pairs that were
// never observed are absent. If a (region, scene) pair appears twice the first
// occurrence wins. Rows are sorted by region id.
func Pivot(obs []Observation) []WideRow {
	byRegion := make(map[string]map[string]*float64)
	for _, o := range obs {
		cols, ok := byRegion[o.RegionID]
		if !ok {
			cols = make(map[string]*float64)
			byRegion[o.RegionID] = cols
		}
		if _, dup := cols[o.SceneID]; dup {
			continue
		}
		v := o.Value
		cols[o.SceneID] = &v
	}

	rows := make([]WideRow, 0, len(byRegion))
	for id, cols := range byRegion {
		rows = append(rows, WideRow{RegionID: id, Values: cols})
	}
	sortWide(rows)
	return rows
}

// MergeSameDay collapses columns sharing the same keyLen-character prefix into
// one column holding their maximum. Sentinel and nil values are excluded
// before the reduction; a group with nothing left is the nil missing marker.
func MergeSameDay(rows []WideRow, keyLen int) []WideRow {
	merged := make([]WideRow, 0, len(rows))
	for _, row := range rows {
		groups := make(map[string][]float64)
		for col, v := range row.Values {
			day := truncateKey(col, keyLen)
			if _, ok := groups[day]; !ok {
				groups[day] = nil
			}
			if v == nil || *v == Sentinel {
				continue
			}
			groups[day] = append(groups[day], *v)
		}

		out := make(map[string]*float64, len(groups))
		for day, vals := range groups {
			if len(vals) == 0 {
				out[day] = nil
				continue
			}
			m := floats.Max(vals)
			out[day] = &m
		}
		merged = append(merged, WideRow{RegionID: row.RegionID, Values: out})
	}
	sortWide(merged)
	return merged
}

// WideColumns returns the sorted union of column keys across rows.
func WideColumns(rows []WideRow) []string {
	set := make(map[string]struct{})
	for _, r := range rows {
		for k := range r.Values {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func sortWide(rows []WideRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].RegionID < rows[j].RegionID })
}
