package bodymap

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Resolution is the result of mapping a free-text mention to a catalog type.
type Resolution struct {
	Type           string     `json:"type"`
	DisplayName    string     `json:"display_name"`
	Category       Category   `json:"category"`
	MatchedKeyword string     `json:"matched_keyword"`
	Laterality     Laterality `json:"laterality,omitempty"`
	Adjusted       bool       `json:"adjusted"`
	Placement      Placement  `json:"placement"`
	IsStatusBadge  bool       `json:"is_status_badge"`
}

// Resolve maps free text to a marker type. An entry matches when any of its
// keywords occurs in the lower-cased text. The longest matching keyword wins
// and equal lengths fall back to catalog order. A whole-word "left" or
// "right" selects the laterality override when the matched type defines one;
// the first cue in the text wins. Resolve returns false when nothing
// matches and never guesses.
func (c *Catalog) Resolve(text string) (Resolution, bool) {
	normalized := strings.ToLower(text)
	if strings.TrimSpace(normalized) == "" {
		return Resolution{}, false
	}

	best, bestLen, bestKW := -1, 0, ""
	for i, d := range c.defs {
		for _, kw := range d.Keywords {
			if len(kw) > bestLen && strings.Contains(normalized, kw) {
				best, bestLen, bestKW = i, len(kw), kw
			}
		}
	}
	if best < 0 {
		return Resolution{}, false
	}

	def := c.defs[best]
	side := lateralityCue(normalized)
	placement, adjusted := def.PlacementFor(side)
	return Resolution{
		Type:           def.Type,
		DisplayName:    def.DisplayName,
		Category:       def.Category,
		MatchedKeyword: bestKW,
		Laterality:     side,
		Adjusted:       adjusted,
		Placement:      placement,
		IsStatusBadge:  def.IsStatusBadge,
	}, true
}

// ResolveAll splits text on commas, semicolons and newlines and resolves each
// mention independently. Unmatched mentions are returned separately so the
// caller can fall back to manual selection.
func (c *Catalog) ResolveAll(text string) (resolved []Resolution, unmatched []string) {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if res, ok := c.Resolve(p); ok {
			resolved = append(resolved, res)
		} else {
			unmatched = append(unmatched, p)
		}
	}
	return resolved, unmatched
}

func lateralityCue(normalized string) Laterality {
	words := strings.FieldsFunc(normalized, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		switch w {
		case "left":
			return LateralityLeft
		case "right":
			return LateralityRight
		}
	}
	return ""
}

// CreateRequest drafts a create request from the resolution. The caller
// supplies the source and, for smartscribe, the confidence score.
func (r Resolution) CreateRequest(patientID uuid.UUID, source Source, confidence *float64) CreateMarkerRequest {
	x, y := r.Placement.Position.X, r.Placement.Position.Y
	return CreateMarkerRequest{
		PatientID:       patientID,
		MarkerType:      r.Type,
		DisplayName:     r.DisplayName,
		Category:        r.Category,
		BodyRegion:      r.Placement.BodyRegion,
		BodyView:        r.Placement.BodyView,
		PositionX:       &x,
		PositionY:       &y,
		Source:          source,
		ConfidenceScore: confidence,
	}
}
