package bodymap

import (
	"context"

	"github.com/google/uuid"
)

// MarkerStore persists patient markers. The conditional transitions report
// false when the marker was not in the required state at write time.
type MarkerStore interface {
	Get(ctx context.Context, patientID uuid.UUID) (*MarkerSummary, error)
	GetByID(ctx context.Context, id uuid.UUID) (*PatientMarker, error)
	Create(ctx context.Context, m *PatientMarker) error
	Update(ctx context.Context, m *PatientMarker) error
	Confirm(ctx context.Context, id uuid.UUID, actingUser *string) (bool, error)
	Reject(ctx context.Context, id uuid.UUID, actingUser *string) (bool, error)
	Deactivate(ctx context.Context, id uuid.UUID, actingUser *string) (bool, error)
	// ConfirmAllPending confirms every pending marker of the patient and
	// returns the markers as they were before confirmation.
	ConfirmAllPending(ctx context.Context, patientID uuid.UUID, actingUser *string) ([]*PatientMarker, error)
}

// HistoryStore is the append-only audit trail of marker transitions.
type HistoryStore interface {
	Append(ctx context.Context, e *HistoryEntry) error
	ListForMarker(ctx context.Context, markerID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error)
}

// Transactor runs fn atomically. Stores called with the context passed to fn
// join the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SummaryCache holds the last known MarkerSummary per patient. Every
// Invalidate advances the patient's generation, and Set only writes while
// the generation still matches the one read before the summary was built.
type SummaryCache interface {
	Get(ctx context.Context, patientID uuid.UUID) (*MarkerSummary, bool, error)
	Generation(ctx context.Context, patientID uuid.UUID) (int64, error)
	Set(ctx context.Context, s *MarkerSummary, generation int64) (bool, error)
	Invalidate(ctx context.Context, patientID uuid.UUID) error
}
