package bodymap

import "sort"

var severityWeight = map[Category]int{
	CategoryCritical:      6,
	CategoryNeurological:  5,
	CategoryChronic:       4,
	CategoryModerate:      3,
	CategoryMonitoring:    2,
	CategoryInformational: 1,
}

const attentionBoost = 15

// PriorityScore ranks a marker for list display: category severity scaled
// by ten, plus a boost when the marker needs attention. The boost lifts a
// marker above the next severity band but not two bands.
func PriorityScore(m *PatientMarker) int {
	score := severityWeight[m.Category] * 10
	if m.RequiresAttention {
		score += attentionBoost
	}
	return score
}

// SortByPriority returns a new slice ordered by descending score, then by
// most recent activity. Markers equal on both keep their input order.
func SortByPriority(markers []*PatientMarker) []*PatientMarker {
	out := make([]*PatientMarker, len(markers))
	copy(out, markers)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := PriorityScore(out[i]), PriorityScore(out[j])
		if si != sj {
			return si > sj
		}
		return out[i].LastTouched().After(out[j].LastTouched())
	})
	return out
}
