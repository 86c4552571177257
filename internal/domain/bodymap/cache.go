package bodymap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bodymap/internal/platform/cache"
	"github.com/ehr/bodymap/internal/platform/db"
)

type summaryCache struct {
	store cache.Store
	ttl   time.Duration
}

// NewSummaryCache keeps marker summaries in store, keyed by tenant and
// patient.
func NewSummaryCache(store cache.Store, ttl time.Duration) SummaryCache {
	return &summaryCache{store: store, ttl: ttl}
}

func summaryKey(ctx context.Context, patientID uuid.UUID) string {
	tenant := db.TenantFromContext(ctx)
	if tenant == "" {
		tenant = "default"
	}
	return "summary:" + tenant + ":" + patientID.String()
}

func generationKey(ctx context.Context, patientID uuid.UUID) string {
	return summaryKey(ctx, patientID) + ":gen"
}

func (c *summaryCache) Get(ctx context.Context, patientID uuid.UUID) (*MarkerSummary, bool, error) {
	var s MarkerSummary
	ok, err := cache.GetJSON(ctx, c.store, summaryKey(ctx, patientID), &s)
	if err != nil || !ok {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *summaryCache) Generation(ctx context.Context, patientID uuid.UUID) (int64, error) {
	return c.store.Counter(ctx, generationKey(ctx, patientID))
}

func (c *summaryCache) Set(ctx context.Context, s *MarkerSummary, generation int64) (bool, error) {
	return cache.SetJSONIfCounter(ctx, c.store, summaryKey(ctx, s.PatientID), s, c.ttl,
		generationKey(ctx, s.PatientID), generation)
}

// Invalidate bumps the generation before deleting so a load that read the
// store earlier cannot write its summary back.
func (c *summaryCache) Invalidate(ctx context.Context, patientID uuid.UUID) error {
	if _, err := c.store.Incr(ctx, generationKey(ctx, patientID)); err != nil {
		return err
	}
	return c.store.Delete(ctx, summaryKey(ctx, patientID))
}
