package bodymap

import "strings"

type BadgeGroup string

const (
	BadgeTop   BadgeGroup = "top"
	BadgeLeft  BadgeGroup = "left"
	BadgeRight BadgeGroup = "right"
)

// Perimeter slot geometry in diagram coordinates.
const (
	topSlotY       = 4.0
	topSlotSpacing = 12.0
	sideSlotStartY = 14.0
	sideSlotGap    = 9.0
	leftSlotX      = 6.0
	rightSlotX     = 94.0
)

// BadgeSlot is one status badge placed on the diagram perimeter.
type BadgeSlot struct {
	MarkerID    string           `json:"marker_id"`
	MarkerType  string           `json:"marker_type"`
	DisplayName string           `json:"display_name"`
	Status      Status           `json:"status"`
	Group       BadgeGroup       `json:"group"`
	Index       int              `json:"index"`
	Position    Point            `json:"position"`
	Appearance  *BadgeAppearance `json:"appearance,omitempty"`
}

// BadgeLayout holds the three perimeter groups.
type BadgeLayout struct {
	Top   []BadgeSlot `json:"top"`
	Left  []BadgeSlot `json:"left"`
	Right []BadgeSlot `json:"right"`
}

func (l BadgeLayout) Len() int { return len(l.Top) + len(l.Left) + len(l.Right) }

var rightBadgePatterns = []string{"allergy", "airway", "iv_access", "limb"}

// BadgeGroupFor assigns a badge type to a perimeter edge: code status on
// top, isolation and access alerts on the right, everything else left.
func BadgeGroupFor(markerType string) BadgeGroup {
	if strings.HasPrefix(markerType, "code_") {
		return BadgeTop
	}
	if strings.HasPrefix(markerType, "isolation_") {
		return BadgeRight
	}
	for _, p := range rightBadgePatterns {
		if strings.Contains(markerType, p) {
			return BadgeRight
		}
	}
	return BadgeLeft
}

// ClassifyBadges partitions visible status-badge markers into perimeter
// groups. Rejected, inactive and non-badge markers are never placed. Within
// a group, input order is kept.
func (c *Catalog) ClassifyBadges(markers []*PatientMarker) BadgeLayout {
	var layout BadgeLayout
	for _, m := range markers {
		if !m.Visible() {
			continue
		}
		def, ok := c.Definition(m.MarkerType)
		if !ok || !def.IsStatusBadge {
			continue
		}
		slot := BadgeSlot{
			MarkerID:    m.ID.String(),
			MarkerType:  m.MarkerType,
			DisplayName: m.DisplayName,
			Status:      m.Status,
			Appearance:  def.Badge,
		}
		switch g := BadgeGroupFor(m.MarkerType); g {
		case BadgeTop:
			slot.Group = g
			layout.Top = append(layout.Top, slot)
		case BadgeRight:
			slot.Group = g
			layout.Right = append(layout.Right, slot)
		default:
			slot.Group = BadgeLeft
			layout.Left = append(layout.Left, slot)
		}
	}

	for i := range layout.Top {
		layout.Top[i].Index = i
		layout.Top[i].Position = topSlot(i, len(layout.Top))
	}
	for i := range layout.Left {
		layout.Left[i].Index = i
		layout.Left[i].Position = Point{X: leftSlotX, Y: sideSlot(i)}
	}
	for i := range layout.Right {
		layout.Right[i].Index = i
		layout.Right[i].Position = Point{X: rightSlotX, Y: sideSlot(i)}
	}
	return layout
}

// topSlot spreads n badges evenly around the horizontal center.
func topSlot(i, n int) Point {
	offset := float64(i) - float64(n-1)/2
	return Point{X: 50 + offset*topSlotSpacing, Y: topSlotY}
}

func sideSlot(i int) float64 {
	return sideSlotStartY + float64(i)*sideSlotGap
}
