package bodymap

import "github.com/google/uuid"

// Board is the read model handed to the rendering layer for one patient.
type Board struct {
	PatientID      uuid.UUID        `json:"patient_id"`
	Markers        []*PatientMarker `json:"markers"`
	Anatomical     []*PatientMarker `json:"anatomical"`
	Badges         BadgeLayout      `json:"badges"`
	PendingCount   int              `json:"pending_count"`
	AttentionCount int              `json:"attention_count"`
}

// BuildBoard orders the summary's markers by priority, splits out the ones
// drawn at anatomical points, and lays out the perimeter badges.
func (c *Catalog) BuildBoard(s *MarkerSummary) *Board {
	ordered := SortByPriority(s.Markers)
	b := &Board{
		PatientID:      s.PatientID,
		Markers:        ordered,
		Anatomical:     make([]*PatientMarker, 0, len(ordered)),
		Badges:         c.ClassifyBadges(s.Markers),
		PendingCount:   s.PendingCount,
		AttentionCount: s.AttentionCount,
	}
	for _, m := range ordered {
		if def, ok := c.Definition(m.MarkerType); ok && def.IsStatusBadge {
			continue
		}
		b.Anatomical = append(b.Anatomical, m)
	}
	return b
}
