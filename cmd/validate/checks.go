package main

import (
	"sort"

	"github.com/couchcryptid/plot-timeseries-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
)

// tables is one variable's export as read back from disk.
type tables struct {
	tall    []domain.TallRow
	columns []string
	wide    []domain.WideRow
}

// ── Tall ──

func validateTall(variable string, t tables) *phase {
	p := &phase{name: variable + ": tall ordering and uniqueness"}
	seen := make(map[[2]string]bool, len(t.tall))
	for i, r := range t.tall {
		k := [2]string{r.RegionID, r.DateKey}
		if seen[k] {
			p.errorf("row %d: duplicate (%s, %s)", i+2, r.RegionID, r.DateKey)
		}
		seen[k] = true
		if r.Value == domain.Sentinel {
			p.errorf("row %d: sentinel value survived for (%s, %s)", i+2, r.RegionID, r.DateKey)
		}
		if i > 0 {
			prev := t.tall[i-1]
			if r.RegionID < prev.RegionID || (r.RegionID == prev.RegionID && r.DateKey < prev.DateKey) {
				p.errorf("row %d: (%s, %s) sorts before (%s, %s)", i+2, r.RegionID, r.DateKey, prev.RegionID, prev.DateKey)
			}
		}
	}
	return p
}

// ── Wide ──

func validateWide(variable string, t tables, keyLen int) *phase {
	p := &phase{name: variable + ": wide shape"}
	if !sort.StringsAreSorted(t.columns) {
		p.errorf("columns are not sorted: %v", t.columns)
	}
	cols := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		if cols[c] {
			p.errorf("duplicate column %s", c)
		}
		cols[c] = true
		if len(c) != keyLen {
			p.errorf("column %s is not a %d-character date key", c, keyLen)
		}
	}
	ids := make(map[string]bool, len(t.wide))
	for i, r := range t.wide {
		if ids[r.RegionID] {
			p.errorf("row %d: duplicate region %s", i+2, r.RegionID)
		}
		ids[r.RegionID] = true
		if i > 0 && r.RegionID < t.wide[i-1].RegionID {
			p.errorf("row %d: region %s sorts before %s", i+2, r.RegionID, t.wide[i-1].RegionID)
		}
		for c, v := range r.Values {
			if v != nil && *v == domain.Sentinel {
				p.errorf("region %s column %s: sentinel leaked into the merged value", r.RegionID, c)
			}
		}
	}
	return p
}

// ── Tall/wide agreement ──

// validateAgreement checks that every tall row is backed by a wide cell at
// least as large (the wide cell is the same-day maximum) and that every
// non-empty wide cell has a tall row.
func validateAgreement(variable string, t tables) *phase {
	p := &phase{name: variable + ": tall/wide agreement"}
	wide := make(map[string]map[string]*float64, len(t.wide))
	for _, r := range t.wide {
		wide[r.RegionID] = r.Values
	}
	tall := make(map[[2]string]bool, len(t.tall))
	for _, r := range t.tall {
		tall[[2]string{r.RegionID, r.DateKey}] = true
		cell, ok := wide[r.RegionID][r.DateKey]
		switch {
		case !ok:
			p.errorf("(%s, %s): tall row has no wide column", r.RegionID, r.DateKey)
		case cell == nil:
			p.errorf("(%s, %s): tall value %g but wide cell is empty", r.RegionID, r.DateKey, r.Value)
		case *cell < r.Value:
			p.errorf("(%s, %s): wide max %g below tall value %g", r.RegionID, r.DateKey, *cell, r.Value)
		}
	}
	for _, r := range t.wide {
		for c, v := range r.Values {
			if v != nil && !tall[[2]string{r.RegionID, c}] {
				p.errorf("(%s, %s): wide value %g has no tall row", r.RegionID, c, *v)
			}
		}
	}
	return p
}

// ── Expected ──

func validateExpected(variable string, got, want tables) *phase {
	p := &phase{name: variable + ": matches expected export"}
	if diff := cmp.Diff(want.tall, got.tall); diff != "" {
		p.errorf("tall mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.columns, got.columns); diff != "" {
		p.errorf("wide columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.wide, got.wide); diff != "" {
		p.errorf("wide mismatch (-want +got):\n%s", diff)
	}
	return p
}
