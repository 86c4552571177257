package bodymap

import (
	"math"
	"sync"
)

// Bounds is an axis-aligned box in diagram space.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// BodyRegion is a named anatomical zone on one view of the diagram.
type BodyRegion struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	View   View   `json:"view"`
	Center Point  `json:"center"`
	Bounds Bounds `json:"bounds"`
}

// Contains reports whether (x,y) lies inside the region's bounds, edges
// included.
func (r BodyRegion) Contains(x, y float64) bool {
	return x >= r.Bounds.MinX && x <= r.Bounds.MaxX && y >= r.Bounds.MinY && y <= r.Bounds.MaxY
}

func (r BodyRegion) distance(x, y float64) float64 {
	return math.Hypot(x-r.Center.X, y-r.Center.Y)
}

// RegionIndex is an immutable, ordered catalog of body regions. It is safe
// for concurrent use.
type RegionIndex struct {
	regions []BodyRegion
	byID    map[string]int
	byView  map[View][]int
}

// NewRegionIndex builds an index over regions. Catalog order is preserved
// and is the tie-break for nearest-region lookups. Later duplicates of an id
// are ignored.
func NewRegionIndex(regions []BodyRegion) *RegionIndex {
	idx := &RegionIndex{
		regions: make([]BodyRegion, 0, len(regions)),
		byID:    make(map[string]int, len(regions)),
		byView:  make(map[View][]int),
	}
	for _, r := range regions {
		if _, dup := idx.byID[r.ID]; dup {
			continue
		}
		i := len(idx.regions)
		idx.regions = append(idx.regions, r)
		idx.byID[r.ID] = i
		idx.byView[r.View] = append(idx.byView[r.View], i)
	}
	return idx
}

var (
	defaultRegionsOnce sync.Once
	defaultRegions     *RegionIndex
)

// DefaultRegions returns the built-in front and back region catalog.
func DefaultRegions() *RegionIndex {
	defaultRegionsOnce.Do(func() {
		defaultRegions = NewRegionIndex(builtinRegions())
	})
	return defaultRegions
}

// FindClosestRegion returns the region of view whose center is nearest to
// (x,y). Equal distances resolve to the earlier region in catalog order. The
// second return value is false only when the view has no regions.
func (idx *RegionIndex) FindClosestRegion(x, y float64, view View) (BodyRegion, bool) {
	candidates := idx.byView[view]
	if len(candidates) == 0 {
		return BodyRegion{}, false
	}
	best := candidates[0]
	bestDist := idx.regions[best].distance(x, y)
	for _, i := range candidates[1:] {
		if d := idx.regions[i].distance(x, y); d < bestDist {
			best, bestDist = i, d
		}
	}
	return idx.regions[best], true
}

// RegionAt returns the first region of view whose bounds contain (x,y),
// falling back to the closest region by center distance.
func (idx *RegionIndex) RegionAt(x, y float64, view View) (BodyRegion, bool) {
	for _, i := range idx.byView[view] {
		if idx.regions[i].Contains(x, y) {
			return idx.regions[i], true
		}
	}
	return idx.FindClosestRegion(x, y, view)
}

// Region looks up a region by id in any view.
func (idx *RegionIndex) Region(id string) (BodyRegion, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return BodyRegion{}, false
	}
	return idx.regions[i], true
}

// RegionInView looks up id and checks that it belongs to view.
func (idx *RegionIndex) RegionInView(id string, view View) (BodyRegion, bool) {
	r, ok := idx.Region(id)
	if !ok || r.View != view {
		return BodyRegion{}, false
	}
	return r, true
}

// RegionsForView returns a copy of the regions for view in catalog order.
func (idx *RegionIndex) RegionsForView(view View) []BodyRegion {
	ids := idx.byView[view]
	out := make([]BodyRegion, 0, len(ids))
	for _, i := range ids {
		out = append(out, idx.regions[i])
	}
	return out
}

// Len returns the number of regions across all views.
func (idx *RegionIndex) Len() int { return len(idx.regions) }

func region(id, label string, view View, cx, cy, minX, maxX, minY, maxY float64) BodyRegion {
	return BodyRegion{
		ID:     id,
		Label:  label,
		View:   view,
		Center: Point{X: cx, Y: cy},
		Bounds: Bounds{MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY},
	}
}

// builtinRegions lists the anatomical zones of the diagram. The front view
// is drawn facing the viewer so the patient's right side sits at low x; the
// back view is mirrored.
func builtinRegions() []BodyRegion {
	return []BodyRegion{
		// front
		region("head", "Head", ViewFront, 50, 6, 42, 58, 0, 11),
		region("neck", "Neck", ViewFront, 50, 14, 45, 55, 11, 17),
		region("shoulder_right", "Right Shoulder", ViewFront, 34, 19, 27, 41, 16, 23),
		region("shoulder_left", "Left Shoulder", ViewFront, 66, 19, 59, 73, 16, 23),
		region("chest_right", "Right Chest", ViewFront, 41, 30, 34, 50, 22, 38),
		region("chest_left", "Left Chest", ViewFront, 59, 30, 50, 66, 22, 38),
		region("abdomen", "Abdomen", ViewFront, 50, 46, 38, 62, 38, 54),
		region("pelvis", "Pelvis", ViewFront, 50, 58, 38, 62, 54, 62),
		region("groin_right", "Right Groin", ViewFront, 44, 64, 38, 50, 62, 67),
		region("groin_left", "Left Groin", ViewFront, 56, 64, 50, 62, 62, 67),
		region("upper_arm_right", "Right Upper Arm", ViewFront, 28, 30, 22, 34, 22, 40),
		region("upper_arm_left", "Left Upper Arm", ViewFront, 72, 30, 66, 78, 22, 40),
		region("forearm_right", "Right Forearm", ViewFront, 23, 45, 17, 30, 40, 52),
		region("forearm_left", "Left Forearm", ViewFront, 77, 45, 70, 83, 40, 52),
		region("hand_right", "Right Hand", ViewFront, 18, 56, 12, 25, 52, 62),
		region("hand_left", "Left Hand", ViewFront, 82, 56, 75, 88, 52, 62),
		region("thigh_right", "Right Thigh", ViewFront, 43, 73, 36, 50, 67, 80),
		region("thigh_left", "Left Thigh", ViewFront, 57, 73, 50, 64, 67, 80),
		region("knee_right", "Right Knee", ViewFront, 43, 82, 37, 50, 80, 85),
		region("knee_left", "Left Knee", ViewFront, 57, 82, 50, 63, 80, 85),
		region("lower_leg_right", "Right Lower Leg", ViewFront, 43, 90, 37, 50, 85, 95),
		region("lower_leg_left", "Left Lower Leg", ViewFront, 57, 90, 50, 63, 85, 95),
		region("foot_right", "Right Foot", ViewFront, 43, 97, 36, 50, 95, 100),
		region("foot_left", "Left Foot", ViewFront, 57, 97, 50, 64, 95, 100),

		// back
		region("head_back", "Back of Head", ViewBack, 50, 6, 42, 58, 0, 11),
		region("neck_back", "Back of Neck", ViewBack, 50, 14, 45, 55, 11, 17),
		region("shoulder_left_back", "Left Shoulder (Posterior)", ViewBack, 34, 19, 27, 41, 16, 23),
		region("shoulder_right_back", "Right Shoulder (Posterior)", ViewBack, 66, 19, 59, 73, 16, 23),
		region("upper_back", "Upper Back", ViewBack, 50, 30, 34, 66, 22, 38),
		region("lower_back", "Lower Back", ViewBack, 50, 45, 38, 62, 38, 52),
		region("sacrum", "Sacrum / Coccyx", ViewBack, 50, 55, 44, 56, 52, 59),
		region("buttock_left", "Left Buttock", ViewBack, 43, 62, 36, 50, 57, 67),
		region("buttock_right", "Right Buttock", ViewBack, 57, 62, 50, 64, 57, 67),
		region("upper_arm_left_back", "Left Upper Arm (Posterior)", ViewBack, 28, 30, 22, 34, 22, 40),
		region("upper_arm_right_back", "Right Upper Arm (Posterior)", ViewBack, 72, 30, 66, 78, 22, 40),
		region("elbow_left", "Left Elbow", ViewBack, 25, 41, 20, 30, 38, 44),
		region("elbow_right", "Right Elbow", ViewBack, 75, 41, 70, 80, 38, 44),
		region("forearm_left_back", "Left Forearm (Posterior)", ViewBack, 22, 48, 16, 29, 44, 53),
		region("forearm_right_back", "Right Forearm (Posterior)", ViewBack, 78, 48, 71, 84, 44, 53),
		region("hand_left_back", "Back of Left Hand", ViewBack, 18, 57, 12, 25, 53, 62),
		region("hand_right_back", "Back of Right Hand", ViewBack, 82, 57, 75, 88, 53, 62),
		region("thigh_left_back", "Left Posterior Thigh", ViewBack, 43, 74, 36, 50, 67, 82),
		region("thigh_right_back", "Right Posterior Thigh", ViewBack, 57, 74, 50, 64, 67, 82),
		region("calf_left", "Left Calf", ViewBack, 43, 88, 37, 50, 82, 94),
		region("calf_right", "Right Calf", ViewBack, 57, 88, 50, 63, 82, 94),
		region("heel_left", "Left Heel", ViewBack, 43, 97, 36, 50, 94, 100),
		region("heel_right", "Right Heel", ViewBack, 57, 97, 50, 64, 94, 100),
	}
}
