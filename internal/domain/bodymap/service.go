package bodymap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bodymap/internal/platform/auth"
	"github.com/ehr/bodymap/internal/platform/db"
	"github.com/ehr/bodymap/internal/platform/events"
)

// DefaultAttentionThreshold is the confidence below which a smartscribe
// marker is flagged for attention on creation.
const DefaultAttentionThreshold = 0.7

// Event types emitted after a committed mutation.
const (
	EventMarkerCreated      = "marker.created"
	EventMarkerUpdated      = "marker.updated"
	EventMarkerConfirmed    = "marker.confirmed"
	EventMarkerRejected     = "marker.rejected"
	EventMarkerDeactivated  = "marker.deactivated"
	EventMarkersConfirmed   = "marker.confirmed_all"
	EventTransitionRejected = "marker.transition_rejected"
	EventStoreFailure       = "marker.store_error"
)

// MarkerTopic is the subscription topic carrying a patient's marker events.
func MarkerTopic(patientID uuid.UUID) string {
	return "patient:" + patientID.String() + ":markers"
}

// IsMarkerTopic reports whether topic is one the service emits on: a
// patient topic or the patient-less "markers" topic.
func IsMarkerTopic(topic string) bool {
	if topic == "markers" {
		return true
	}
	id, ok := strings.CutPrefix(topic, "patient:")
	if !ok {
		return false
	}
	id, ok = strings.CutSuffix(id, ":markers")
	if !ok {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Service is the marker lifecycle manager. Every mutation runs in a single
// transaction together with its history entry; events and cache
// invalidation follow the commit.
type Service struct {
	markers   MarkerStore
	history   HistoryStore
	tx        Transactor
	catalog   *Catalog
	regions   *RegionIndex
	cache     SummaryCache
	sink      events.Sink
	logger    zerolog.Logger
	threshold float64
	now       func() time.Time
}

// NewService builds a Service with the default attention threshold, no
// cache and a discarding event sink.
func NewService(markers MarkerStore, history HistoryStore, catalog *Catalog, regions *RegionIndex) *Service {
	return &Service{
		markers:   markers,
		history:   history,
		catalog:   catalog,
		regions:   regions,
		sink:      events.Discard,
		logger:    zerolog.Nop(),
		threshold: DefaultAttentionThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetTransactor makes mutations atomic. Without one, store calls run
// directly on the request context.
func (s *Service) SetTransactor(tx Transactor) { s.tx = tx }

// SetCache attaches a summary cache used by Get.
func (s *Service) SetCache(c SummaryCache) { s.cache = c }

// SetEventSink routes marker events to sink. A nil sink discards them.
func (s *Service) SetEventSink(sink events.Sink) {
	if sink == nil {
		sink = events.Discard
	}
	s.sink = sink
}

// SetLogger tags l with the bodymap component and uses it for warnings.
func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "bodymap").Logger()
}

// SetAttentionThreshold overrides DefaultAttentionThreshold.
func (s *Service) SetAttentionThreshold(t float64) { s.threshold = t }

func (s *Service) Catalog() *Catalog      { return s.catalog }
func (s *Service) Regions() *RegionIndex { return s.regions }

// Get returns the visible markers of a patient with pending and attention
// counts. A cache failure is logged and the store is read instead.
func (s *Service) Get(ctx context.Context, patientID uuid.UUID) (*MarkerSummary, error) {
	if patientID == uuid.Nil {
		return nil, required("patient_id")
	}
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, patientID)
		if err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("summary cache read failed")
		} else if ok {
			return cached, nil
		}
	}
	return s.load(ctx, patientID)
}

// Refresh drops any cached summary and re-reads the store.
func (s *Service) Refresh(ctx context.Context, patientID uuid.UUID) (*MarkerSummary, error) {
	if patientID == uuid.Nil {
		return nil, required("patient_id")
	}
	s.invalidate(ctx, patientID)
	return s.load(ctx, patientID)
}

// load reads the store and caches the result unless the patient's cache
// generation moved while the store was being read.
func (s *Service) load(ctx context.Context, patientID uuid.UUID) (*MarkerSummary, error) {
	cacheable := s.cache != nil
	var gen int64
	if cacheable {
		g, err := s.cache.Generation(ctx, patientID)
		if err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("summary cache generation read failed")
			cacheable = false
		}
		gen = g
	}

	raw, err := s.markers.Get(ctx, patientID)
	if err != nil {
		return nil, storeErr("get", err)
	}
	summary := summarize(patientID, raw.Markers)
	if cacheable {
		stored, err := s.cache.Set(ctx, summary, gen)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("summary cache write failed")
		case !stored:
			s.logger.Debug().Str("patient_id", patientID.String()).Msg("summary changed during load, not cached")
		}
	}
	return summary, nil
}

// Board builds the prioritized read model for the rendering layer.
func (s *Service) Board(ctx context.Context, patientID uuid.UUID) (*Board, error) {
	summary, err := s.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.catalog.BuildBoard(summary), nil
}

func (s *Service) GetMarker(ctx context.Context, id uuid.UUID) (*PatientMarker, error) {
	m, err := s.markers.GetByID(ctx, id)
	if err != nil {
		return nil, s.lookupErr(id, err)
	}
	return m, nil
}

// History lists the audit entries of a marker, newest first.
func (s *Service) History(ctx context.Context, id uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	if _, err := s.GetMarker(ctx, id); err != nil {
		return nil, 0, err
	}
	entries, total, err := s.history.ListForMarker(ctx, id, limit, offset)
	if err != nil {
		return nil, 0, storeErr("list history", err)
	}
	return entries, total, nil
}

// Create validates req, derives status and attention from the source, and
// stores the marker with a "created" history entry.
func (s *Service) Create(ctx context.Context, req CreateMarkerRequest) (*PatientMarker, error) {
	m, err := s.newMarker(req, actingUser(ctx))
	if err != nil {
		return nil, err
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.markers.Create(ctx, m); err != nil {
			return err
		}
		return s.appendHistory(ctx, m.ID, ActionCreated, nil)
	})
	if err != nil {
		return nil, s.fail(ctx, "create", m.PatientID, uuid.Nil, storeErr("create", err))
	}
	s.committed(ctx, EventMarkerCreated, m.PatientID, m.ID, m)
	s.logger.Info().
		Str("marker_id", m.ID.String()).
		Str("patient_id", m.PatientID.String()).
		Str("marker_type", m.MarkerType).
		Str("status", string(m.Status)).
		Msg("marker created")
	return m, nil
}

// CreateFromText resolves free text to a catalog type and creates a marker
// at the resolved placement.
func (s *Service) CreateFromText(ctx context.Context, patientID uuid.UUID, text string, source Source, confidence *float64) (*PatientMarker, error) {
	res, ok := s.catalog.Resolve(text)
	if !ok {
		return nil, &NotFoundError{Kind: "marker type match for", ID: strings.TrimSpace(text)}
	}
	return s.Create(ctx, res.CreateRequest(patientID, source, confidence))
}

func (s *Service) newMarker(req CreateMarkerRequest, user *string) (*PatientMarker, error) {
	if req.PatientID == uuid.Nil {
		return nil, required("patient_id")
	}
	req.MarkerType = strings.TrimSpace(req.MarkerType)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.BodyRegion = strings.TrimSpace(req.BodyRegion)
	if req.MarkerType == "" {
		return nil, required("marker_type")
	}
	if req.DisplayName == "" {
		return nil, required("display_name")
	}
	if req.BodyRegion == "" {
		return nil, required("body_region")
	}
	def, ok := s.catalog.Definition(req.MarkerType)
	if !ok {
		return nil, &NotFoundError{Kind: "marker type", ID: req.MarkerType}
	}

	view := req.BodyView
	if view == "" {
		view = def.Default.BodyView
	}
	if !view.Valid() {
		return nil, &ValidationError{Field: "body_view", Message: "must be front or back"}
	}
	region, ok := s.regions.RegionInView(req.BodyRegion, view)
	if !ok {
		return nil, &NotFoundError{Kind: "body region", ID: req.BodyRegion + " (" + string(view) + ")"}
	}

	x, y := region.Center.X, region.Center.Y
	if req.PositionX != nil {
		x = *req.PositionX
	}
	if req.PositionY != nil {
		y = *req.PositionY
	}
	if err := checkPosition(x, y); err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = SourceManual
	}
	if !source.Valid() {
		return nil, &ValidationError{Field: "source", Message: "must be manual, smartscribe or import"}
	}
	category := req.Category
	if category == "" {
		category = def.Category
	}
	if !category.Valid() {
		return nil, &ValidationError{Field: "category", Message: "is not a known category"}
	}
	details, err := normalizeDetails(req.Details)
	if err != nil {
		return nil, err
	}

	now := s.now()
	m := &PatientMarker{
		ID:                uuid.New(),
		PatientID:         req.PatientID,
		Category:          category,
		MarkerType:        req.MarkerType,
		DisplayName:       req.DisplayName,
		BodyRegion:        region.ID,
		PositionX:         x,
		PositionY:         y,
		BodyView:          view,
		Source:            source,
		IsActive:          true,
		Details:           details,
		RequiresAttention: req.RequiresAttention,
		CreatedBy:         user,
		UpdatedBy:         user,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if source == SourceSmartscribe {
		if req.ConfidenceScore == nil {
			return nil, &ValidationError{Field: "confidence_score", Message: "is required for smartscribe markers"}
		}
		c := *req.ConfidenceScore
		if c < 0 || c > 1 {
			return nil, &ValidationError{Field: "confidence_score", Message: "must be between 0 and 1"}
		}
		m.ConfidenceScore = &c
		m.Status = StatusPending
		if c < s.threshold {
			m.RequiresAttention = true
		}
	} else {
		m.Status = StatusConfirmed
		m.ConfirmedBy = user
		m.ConfirmedAt = &now
	}
	return m, nil
}

// Update merges patch into an active, non-rejected marker. Category and
// placement are re-validated against the catalog and region index.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch MarkerPatch) (*PatientMarker, error) {
	if patch.empty() {
		return nil, &ValidationError{Field: "patch", Message: "must change at least one field"}
	}
	user := actingUser(ctx)
	var (
		updated   *PatientMarker
		patientID uuid.UUID
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		cur, err := s.markers.GetByID(ctx, id)
		if err != nil {
			return s.lookupErr(id, err)
		}
		patientID = cur.PatientID
		if !cur.Visible() {
			return &StateError{MarkerID: id, Op: "update", Status: cur.Status, Active: cur.IsActive}
		}
		next, err := s.applyPatch(*cur, patch)
		if err != nil {
			return err
		}
		next.UpdatedBy = user
		next.UpdatedAt = s.now()
		if err := s.markers.Update(ctx, next); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, id, ActionUpdated, cur.snapshot()); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update", patientID, id, storeErr("update", err))
	}
	s.committed(ctx, EventMarkerUpdated, updated.PatientID, id, updated)
	s.logger.Info().Str("marker_id", id.String()).Msg("marker updated")
	return updated, nil
}

func (s *Service) applyPatch(m PatientMarker, p MarkerPatch) (*PatientMarker, error) {
	if p.MarkerType != nil {
		m.MarkerType = strings.TrimSpace(*p.MarkerType)
	}
	if _, ok := s.catalog.Definition(m.MarkerType); !ok {
		return nil, &NotFoundError{Kind: "marker type", ID: m.MarkerType}
	}
	if p.DisplayName != nil {
		m.DisplayName = strings.TrimSpace(*p.DisplayName)
		if m.DisplayName == "" {
			return nil, required("display_name")
		}
	}
	if p.Category != nil {
		if !p.Category.Valid() {
			return nil, &ValidationError{Field: "category", Message: "is not a known category"}
		}
		m.Category = *p.Category
	}
	if p.BodyView != nil {
		if !p.BodyView.Valid() {
			return nil, &ValidationError{Field: "body_view", Message: "must be front or back"}
		}
		m.BodyView = *p.BodyView
	}
	if p.BodyRegion != nil {
		m.BodyRegion = strings.TrimSpace(*p.BodyRegion)
	}
	if _, ok := s.regions.RegionInView(m.BodyRegion, m.BodyView); !ok {
		return nil, &NotFoundError{Kind: "body region", ID: m.BodyRegion + " (" + string(m.BodyView) + ")"}
	}
	if p.PositionX != nil {
		m.PositionX = *p.PositionX
	}
	if p.PositionY != nil {
		m.PositionY = *p.PositionY
	}
	if err := checkPosition(m.PositionX, m.PositionY); err != nil {
		return nil, err
	}
	if p.Details != nil {
		details, err := normalizeDetails(p.Details)
		if err != nil {
			return nil, err
		}
		m.Details = details
	}
	if p.RequiresAttention != nil {
		m.RequiresAttention = *p.RequiresAttention
	}
	return &m, nil
}

type transitionRule struct {
	op           string
	action       HistoryAction
	event        string
	pendingDelta int
	allowed      func(m *PatientMarker) bool
	apply        func(ctx context.Context, id uuid.UUID, user *string) (bool, error)
}

// Confirm accepts a pending marker. Confirmation clears the attention flag.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Transition, error) {
	return s.transition(ctx, id, transitionRule{
		op:           "confirm",
		action:       ActionConfirmed,
		event:        EventMarkerConfirmed,
		pendingDelta: -1,
		allowed:      (*PatientMarker).Pending,
		apply:        s.markers.Confirm,
	})
}

// Reject hides a pending marker from every active view.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Transition, error) {
	return s.transition(ctx, id, transitionRule{
		op:           "reject",
		action:       ActionRejected,
		event:        EventMarkerRejected,
		pendingDelta: -1,
		allowed:      (*PatientMarker).Pending,
		apply:        s.markers.Reject,
	})
}

// Deactivate retires a confirmed marker that no longer applies.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*Transition, error) {
	return s.transition(ctx, id, transitionRule{
		op:     "deactivate",
		action: ActionDeactivated,
		event:  EventMarkerDeactivated,
		allowed: func(m *PatientMarker) bool {
			return m.IsActive && m.Status == StatusConfirmed
		},
		apply: s.markers.Deactivate,
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, rule transitionRule) (*Transition, error) {
	user := actingUser(ctx)
	var (
		result    *PatientMarker
		patientID uuid.UUID
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		cur, err := s.markers.GetByID(ctx, id)
		if err != nil {
			return s.lookupErr(id, err)
		}
		patientID = cur.PatientID
		if !rule.allowed(cur) {
			return &StateError{MarkerID: id, Op: rule.op, Status: cur.Status, Active: cur.IsActive}
		}
		ok, err := rule.apply(ctx, id, user)
		if err != nil {
			return err
		}
		if !ok {
			// lost a race with a concurrent transition
			return &StateError{MarkerID: id, Op: rule.op, Status: cur.Status, Active: cur.IsActive}
		}
		if err := s.appendHistory(ctx, id, rule.action, cur.snapshot()); err != nil {
			return err
		}
		result, err = s.markers.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, rule.op, patientID, id, storeErr(rule.op, err))
	}
	s.committed(ctx, rule.event, result.PatientID, id, result)
	s.logger.Info().
		Str("marker_id", id.String()).
		Str("patient_id", result.PatientID.String()).
		Str("op", rule.op).
		Msg("marker transition")
	return &Transition{Marker: result, PendingDelta: rule.pendingDelta}, nil
}

// ConfirmAllPending confirms every pending marker of the patient in one
// transaction and returns how many were confirmed.
func (s *Service) ConfirmAllPending(ctx context.Context, patientID uuid.UUID) (int, error) {
	if patientID == uuid.Nil {
		return 0, required("patient_id")
	}
	user := actingUser(ctx)
	var prev []*PatientMarker
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		prev, err = s.markers.ConfirmAllPending(ctx, patientID, user)
		if err != nil {
			return err
		}
		for _, m := range prev {
			if err := s.appendHistory(ctx, m.ID, ActionConfirmed, m.snapshot()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.fail(ctx, "confirm all", patientID, uuid.Nil, storeErr("confirm all", err))
	}
	if len(prev) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(prev))
	for i, m := range prev {
		ids[i] = m.ID
	}
	s.committed(ctx, EventMarkersConfirmed, patientID, uuid.Nil, map[string]interface{}{
		"count":      len(prev),
		"marker_ids": ids,
	})
	s.logger.Info().Str("patient_id", patientID.String()).Int("count", len(prev)).Msg("pending markers confirmed")
	return len(prev), nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.InTx(ctx, fn)
}

func (s *Service) appendHistory(ctx context.Context, markerID uuid.UUID, action HistoryAction, prev json.RawMessage) error {
	return s.history.Append(ctx, &HistoryEntry{
		ID:             uuid.New(),
		MarkerID:       markerID,
		Action:         action,
		PreviousValues: prev,
		ActingUser:     actingUser(ctx),
		CreatedAt:      s.now(),
	})
}

func (s *Service) lookupErr(id uuid.UUID, err error) error {
	if errors.Is(err, ErrMarkerNotFound) {
		return &NotFoundError{Kind: "marker", ID: id.String()}
	}
	return err
}

// committed runs the post-commit side effects of a mutation.
func (s *Service) committed(ctx context.Context, typ string, patientID, markerID uuid.UUID, payload interface{}) {
	s.invalidate(ctx, patientID)
	s.emit(ctx, typ, patientID, markerID, payload)
}

// fail reports rejected transitions and store failures as events. The error
// is returned unchanged.
func (s *Service) fail(ctx context.Context, op string, patientID, markerID uuid.UUID, err error) error {
	var (
		se *StateError
		st *StoreError
	)
	switch {
	case errors.As(err, &se):
		s.logger.Warn().
			Str("marker_id", se.MarkerID.String()).
			Str("op", op).
			Str("status", string(se.Status)).
			Bool("active", se.Active).
			Msg("transition rejected")
		s.emit(ctx, EventTransitionRejected, patientID, markerID, map[string]interface{}{
			"op":     op,
			"status": se.Status,
			"active": se.Active,
		})
	case errors.As(err, &st):
		s.logger.Error().Err(st.Err).Str("op", op).Msg("marker store failure")
		s.emit(ctx, EventStoreFailure, patientID, markerID, map[string]interface{}{
			"op":    op,
			"error": st.Err.Error(),
		})
	}
	return err
}

func (s *Service) emit(ctx context.Context, typ string, patientID, markerID uuid.UUID, payload interface{}) {
	topic := "markers"
	if patientID != uuid.Nil {
		topic = MarkerTopic(patientID)
	}
	e := events.New(typ, topic, payload)
	e.Tenant = db.TenantFromContext(ctx)
	e.ActingUser = auth.UserIDFromContext(ctx)
	if patientID != uuid.Nil {
		e.PatientID = patientID.String()
	}
	if markerID != uuid.Nil {
		e.ResourceID = markerID.String()
	}
	if err := s.sink.Emit(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event", typ).Msg("event delivery failed")
	}
}

func (s *Service) invalidate(ctx context.Context, patientID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, patientID); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("summary cache invalidation failed")
	}
}

// actingUser returns the authenticated user, or nil for unattributed
// system actions.
func actingUser(ctx context.Context) *string {
	uid := auth.UserIDFromContext(ctx)
	if uid == "" {
		return nil
	}
	return &uid
}

func checkPosition(x, y float64) error {
	if !inRange(x) {
		return &ValidationError{Field: "position_x", Message: "must be between 0 and 100"}
	}
	if !inRange(y) {
		return &ValidationError{Field: "position_y", Message: "must be between 0 and 100"}
	}
	return nil
}

func normalizeDetails(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, &ValidationError{Field: "details", Message: "must be a JSON object"}
	}
	return json.RawMessage(trimmed), nil
}
