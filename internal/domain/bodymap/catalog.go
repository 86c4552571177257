package bodymap

import (
	"fmt"
	"strings"
	"sync"
)

type Laterality string

const (
	LateralityLeft  Laterality = "left"
	LateralityRight Laterality = "right"
)

// Placement is where a marker lands on the diagram.
type Placement struct {
	BodyRegion string `json:"body_region"`
	BodyView   View   `json:"body_view"`
	Position   Point  `json:"position"`
}

// BadgeAppearance holds rendering hints for perimeter badges.
type BadgeAppearance struct {
	ShortLabel string `json:"short_label"`
	Color      string `json:"color"`
	Icon       string `json:"icon"`
}

// MarkerTypeDefinition describes one canonical marker type.
type MarkerTypeDefinition struct {
	Type          string                   `json:"type"`
	DisplayName   string                   `json:"display_name"`
	Category      Category                 `json:"category"`
	Default       Placement                `json:"default"`
	Keywords      []string                 `json:"keywords"`
	Laterality    map[Laterality]Placement `json:"laterality_adjustments,omitempty"`
	IsStatusBadge bool                     `json:"is_status_badge"`
	Badge         *BadgeAppearance         `json:"badge,omitempty"`
}

// PlacementFor returns the laterality override for side when the type
// defines one, and the default placement otherwise.
func (d MarkerTypeDefinition) PlacementFor(side Laterality) (Placement, bool) {
	if side != "" {
		if p, ok := d.Laterality[side]; ok {
			return p, true
		}
	}
	return d.Default, false
}

// withSide returns a copy of d with a laterality override added.
func (d MarkerTypeDefinition) withSide(side Laterality, regionID string, x, y float64) MarkerTypeDefinition {
	adj := make(map[Laterality]Placement, len(d.Laterality)+1)
	for k, v := range d.Laterality {
		adj[k] = v
	}
	adj[side] = Placement{BodyRegion: regionID, BodyView: d.Default.BodyView, Position: Point{X: x, Y: y}}
	d.Laterality = adj
	return d
}

// Catalog is an immutable, ordered table of marker type definitions. It is
// safe for concurrent use.
type Catalog struct {
	defs   []MarkerTypeDefinition
	byType map[string]int
}

// NewCatalog indexes defs in order and checks every placement against
// regions. Keywords are stored lower-cased.
func NewCatalog(defs []MarkerTypeDefinition, regions *RegionIndex) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]MarkerTypeDefinition, 0, len(defs)),
		byType: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Type == "" {
			return nil, fmt.Errorf("marker type definition without type")
		}
		if _, dup := c.byType[d.Type]; dup {
			return nil, fmt.Errorf("duplicate marker type %q", d.Type)
		}
		if !d.Category.Valid() {
			return nil, fmt.Errorf("marker type %q: invalid category %q", d.Type, d.Category)
		}
		if err := checkPlacement(regions, d.Type, d.Default); err != nil {
			return nil, err
		}
		for _, p := range d.Laterality {
			if err := checkPlacement(regions, d.Type, p); err != nil {
				return nil, err
			}
		}
		kws := make([]string, 0, len(d.Keywords))
		for _, kw := range d.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		d.Keywords = kws
		c.byType[d.Type] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

func checkPlacement(regions *RegionIndex, typ string, p Placement) error {
	if regions == nil {
		return nil
	}
	if _, ok := regions.RegionInView(p.BodyRegion, p.BodyView); !ok {
		return fmt.Errorf("marker type %q: region %q not found in %s view", typ, p.BodyRegion, p.BodyView)
	}
	if !inRange(p.Position.X) || !inRange(p.Position.Y) {
		return fmt.Errorf("marker type %q: position out of range", typ)
	}
	return nil
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the built-in marker type catalog, validated against
// DefaultRegions.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := NewCatalog(builtinMarkerTypes(), DefaultRegions())
		if err != nil {
			panic("bodymap: invalid built-in catalog: " + err.Error())
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Definition is a direct lookup by type key.
func (c *Catalog) Definition(typ string) (MarkerTypeDefinition, bool) {
	i, ok := c.byType[typ]
	if !ok {
		return MarkerTypeDefinition{}, false
	}
	return c.defs[i], true
}

// All returns the definitions in catalog order.
func (c *Catalog) All() []MarkerTypeDefinition {
	out := make([]MarkerTypeDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Filter returns definitions matching category and badge eligibility. An
// empty category matches all; badge nil matches both.
func (c *Catalog) Filter(category Category, badge *bool) []MarkerTypeDefinition {
	var out []MarkerTypeDefinition
	for _, d := range c.defs {
		if category != "" && d.Category != category {
			continue
		}
		if badge != nil && d.IsStatusBadge != *badge {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Len returns the number of marker type definitions.
func (c *Catalog) Len() int { return len(c.defs) }

func inRange(v float64) bool { return v >= 0 && v <= 100 }
