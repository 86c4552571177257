package bodymap

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type View string

const (
	ViewFront View = "front"
	ViewBack  View = "back"
)

func (v View) Valid() bool { return v == ViewFront || v == ViewBack }

type Category string

const (
	CategoryCritical      Category = "critical"
	CategoryModerate      Category = "moderate"
	CategoryInformational Category = "informational"
	CategoryMonitoring    Category = "monitoring"
	CategoryChronic       Category = "chronic"
	CategoryNeurological  Category = "neurological"
)

func (c Category) Valid() bool {
	_, ok := severityWeight[c]
	return ok
}

type Source string

const (
	SourceManual      Source = "manual"
	SourceSmartscribe Source = "smartscribe"
	SourceImport      Source = "import"
)

func (s Source) Valid() bool {
	return s == SourceManual || s == SourceSmartscribe || s == SourceImport
}

type Status string

const (
	StatusPending   Status = "pending_confirmation"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

type HistoryAction string

const (
	ActionCreated     HistoryAction = "created"
	ActionUpdated     HistoryAction = "updated"
	ActionConfirmed   HistoryAction = "confirmed"
	ActionRejected    HistoryAction = "rejected"
	ActionDeactivated HistoryAction = "deactivated"
)

// Point is a coordinate in diagram space, both axes in [0,100].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PatientMarker maps to the patient_marker table.
type PatientMarker struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	PatientID         uuid.UUID       `db:"patient_id" json:"patient_id"`
	Category          Category        `db:"category" json:"category"`
	MarkerType        string          `db:"marker_type" json:"marker_type"`
	DisplayName       string          `db:"display_name" json:"display_name"`
	BodyRegion        string          `db:"body_region" json:"body_region"`
	PositionX         float64         `db:"position_x" json:"position_x"`
	PositionY         float64         `db:"position_y" json:"position_y"`
	BodyView          View            `db:"body_view" json:"body_view"`
	Source            Source          `db:"source" json:"source"`
	Status            Status          `db:"status" json:"status"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	ConfidenceScore   *float64        `db:"confidence_score" json:"confidence_score,omitempty"`
	Details           json.RawMessage `db:"details" json:"details,omitempty"`
	RequiresAttention bool            `db:"requires_attention" json:"requires_attention"`
	CreatedBy         *string         `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy         *string         `db:"updated_by" json:"updated_by,omitempty"`
	ConfirmedBy       *string         `db:"confirmed_by" json:"confirmed_by,omitempty"`
	ConfirmedAt       *time.Time      `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Visible reports whether the marker belongs in active views. Rejected
// markers are hidden regardless of is_active.
func (m *PatientMarker) Visible() bool {
	return m.IsActive && m.Status != StatusRejected
}

// Pending reports whether the marker is awaiting clinician review.
func (m *PatientMarker) Pending() bool {
	return m.Visible() && m.Status == StatusPending
}

// LastTouched is the later of created_at and updated_at.
func (m *PatientMarker) LastTouched() time.Time {
	if m.UpdatedAt.After(m.CreatedAt) {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

func (m *PatientMarker) Position() Point {
	return Point{X: m.PositionX, Y: m.PositionY}
}

// snapshot captures the marker verbatim for a history entry.
func (m *PatientMarker) snapshot() json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

// CreateMarkerRequest is the input to Service.Create. Positions are optional
// and default to the center of the body region.
type CreateMarkerRequest struct {
	PatientID         uuid.UUID       `json:"patient_id"`
	MarkerType        string          `json:"marker_type"`
	DisplayName       string          `json:"display_name"`
	Category          Category        `json:"category,omitempty"`
	BodyRegion        string          `json:"body_region"`
	BodyView          View            `json:"body_view,omitempty"`
	PositionX         *float64        `json:"position_x,omitempty"`
	PositionY         *float64        `json:"position_y,omitempty"`
	Source            Source          `json:"source,omitempty"`
	ConfidenceScore   *float64        `json:"confidence_score,omitempty"`
	Details           json.RawMessage `json:"details,omitempty"`
	RequiresAttention bool            `json:"requires_attention,omitempty"`
}

// MarkerPatch carries the fields Update may change. Nil means unchanged.
type MarkerPatch struct {
	Category          *Category       `json:"category,omitempty"`
	MarkerType        *string         `json:"marker_type,omitempty"`
	DisplayName       *string         `json:"display_name,omitempty"`
	BodyRegion        *string         `json:"body_region,omitempty"`
	PositionX         *float64        `json:"position_x,omitempty"`
	PositionY         *float64        `json:"position_y,omitempty"`
	BodyView          *View           `json:"body_view,omitempty"`
	Details           json.RawMessage `json:"details,omitempty"`
	RequiresAttention *bool           `json:"requires_attention,omitempty"`
}

func (p *MarkerPatch) empty() bool {
	return p.Category == nil && p.MarkerType == nil && p.DisplayName == nil &&
		p.BodyRegion == nil && p.PositionX == nil && p.PositionY == nil &&
		p.BodyView == nil && p.Details == nil && p.RequiresAttention == nil
}

// HistoryEntry maps to the append-only marker_history table.
type HistoryEntry struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	MarkerID       uuid.UUID       `db:"marker_id" json:"marker_id"`
	Action         HistoryAction   `db:"action" json:"action"`
	PreviousValues json.RawMessage `db:"previous_values" json:"previous_values,omitempty"`
	ActingUser     *string         `db:"acting_user" json:"acting_user,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// MarkerSummary is the visible marker set for a patient with its counters.
type MarkerSummary struct {
	PatientID      uuid.UUID        `json:"patient_id"`
	Markers        []*PatientMarker `json:"markers"`
	PendingCount   int              `json:"pending_count"`
	AttentionCount int              `json:"attention_count"`
}

// Transition is the outcome of a single-marker lifecycle operation.
// PendingDelta is the change the caller should apply to the patient's
// pending count.
type Transition struct {
	Marker       *PatientMarker `json:"marker"`
	PendingDelta int            `json:"pending_delta"`
}

// summarize derives the visible set and counters from a raw marker list.
func summarize(patientID uuid.UUID, markers []*PatientMarker) *MarkerSummary {
	s := &MarkerSummary{PatientID: patientID, Markers: make([]*PatientMarker, 0, len(markers))}
	for _, m := range markers {
		if !m.Visible() {
			continue
		}
		s.Markers = append(s.Markers, m)
		if m.Status == StatusPending {
			s.PendingCount++
		}
		if m.RequiresAttention {
			s.AttentionCount++
		}
	}
	return s
}
