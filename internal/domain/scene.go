package domain

import "time"

// SceneQuery selects the scenes of one dataset that are sampled for a run.
type SceneQuery struct {
	Dataset Dataset
	Regions []Region
	// Start is inclusive and End exclusive. Zero values fall back to the
	// dataset profile; a zero End with a zero profile End is open-ended.
	Start time.Time
	End   time.Time
}

// Range returns the effective acquisition window.
func (q SceneQuery) Range() (start, end time.Time) {
	start, end = q.Start, q.End
	if start.IsZero() {
		start = q.Dataset.Start
	}
	if end.IsZero() {
		end = q.Dataset.End
	}
	return start, end
}

// Includes reports whether the scene's date falls inside the query window.
// Scene ids whose date prefix cannot be parsed are excluded.
func (q SceneQuery) Includes(sceneID string) bool {
	t, ok := SceneDate(sceneID, q.Dataset.DateKeyLen)
	if !ok {
		return false
	}
	start, end := q.Range()
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}

// SceneDate parses the date encoded in the first keyLen characters of a scene
// id: YYYYMMDD for daily keys, YYYYMM for monthly keys.
func SceneDate(sceneID string, keyLen int) (time.Time, bool) {
	if len(sceneID) < keyLen {
		return time.Time{}, false
	}
	layout := "20060102"
	if keyLen == MonthlyKeyLen {
		layout = "200601"
	} else if keyLen != DailyKeyLen {
		return time.Time{}, false
	}
	t, err := time.Parse(layout, sceneID[:keyLen])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
