package bodymap

import (
	"github.com/ehr/bodymap/internal/platform/fhir"
)

const (
	markerTypeSystem   = "urn:bodymap:marker-type"
	bodyRegionSystem   = "urn:bodymap:body-region"
	extPosition        = "urn:bodymap:extension:position"
	extBodyView        = "urn:bodymap:extension:body-view"
	extMarkerStatus    = "urn:bodymap:extension:status"
	extMarkerSource    = "urn:bodymap:extension:source"
	extAttention       = "urn:bodymap:extension:requires-attention"
	extConfidenceScore = "urn:bodymap:extension:confidence-score"
)

// ToFHIR renders the marker as a FHIR BodyStructure. The diagram position,
// view and review state travel as extensions.
func (m *PatientMarker) ToFHIR(regions *RegionIndex) map[string]interface{} {
	location := fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: bodyRegionSystem, Code: m.BodyRegion}},
		Text:   m.BodyRegion,
	}
	if regions != nil {
		if r, ok := regions.Region(m.BodyRegion); ok {
			location.Coding[0].Display = r.Label
			location.Text = r.Label
		}
	}

	attention := m.RequiresAttention
	x, y := m.PositionX, m.PositionY
	ext := []fhir.Extension{
		{URL: extPosition + "-x", ValueDecimal: &x},
		{URL: extPosition + "-y", ValueDecimal: &y},
		{URL: extBodyView, ValueCode: string(m.BodyView)},
		{URL: extMarkerStatus, ValueCode: string(m.Status)},
		{URL: extMarkerSource, ValueCode: string(m.Source)},
		{URL: extAttention, ValueBoolean: &attention},
	}
	if m.ConfidenceScore != nil {
		c := *m.ConfidenceScore
		ext = append(ext, fhir.Extension{URL: extConfidenceScore, ValueDecimal: &c})
	}

	return map[string]interface{}{
		"resourceType": "BodyStructure",
		"id":           m.ID.String(),
		"active":       m.Visible(),
		"patient":      fhir.Reference{Reference: fhir.FormatReference("Patient", m.PatientID.String())},
		"meta":         fhir.Meta{LastUpdated: m.UpdatedAt},
		"morphology": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: markerTypeSystem, Code: m.MarkerType, Display: m.DisplayName}},
			Text:   m.DisplayName,
		},
		"location":    location,
		"description": m.DisplayName,
		"extension":   ext,
	}
}
