package bodymap

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bodymap/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

type markerRepoPG struct {
	pool *pgxpool.Pool
}

func NewMarkerRepo(pool *pgxpool.Pool) MarkerStore {
	return &markerRepoPG{pool: pool}
}

func (r *markerRepoPG) conn(ctx context.Context) querier { return conn(ctx, r.pool) }

const markerCols = `id, patient_id, category, marker_type, display_name, body_region,
	position_x, position_y, body_view, source, status, is_active,
	confidence_score, details, requires_attention,
	created_by, updated_by, confirmed_by, confirmed_at, created_at, updated_at`

func (r *markerRepoPG) Get(ctx context.Context, patientID uuid.UUID) (*MarkerSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+markerCols+` FROM patient_marker
		WHERE patient_id = $1 AND is_active AND status <> 'rejected'
		ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	markers, err := collectMarkers(rows)
	if err != nil {
		return nil, err
	}
	return summarize(patientID, markers), nil
}

func (r *markerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientMarker, error) {
	return scanMarker(r.conn(ctx).QueryRow(ctx, `SELECT `+markerCols+` FROM patient_marker WHERE id = $1`, id))
}

func (r *markerRepoPG) Create(ctx context.Context, m *PatientMarker) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_marker (
			id, patient_id, category, marker_type, display_name, body_region,
			position_x, position_y, body_view, source, status, is_active,
			confidence_score, details, requires_attention,
			created_by, updated_by, confirmed_by, confirmed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		m.ID, m.PatientID, m.Category, m.MarkerType, m.DisplayName, m.BodyRegion,
		m.PositionX, m.PositionY, m.BodyView, m.Source, m.Status, m.IsActive,
		m.ConfidenceScore, m.Details, m.RequiresAttention,
		m.CreatedBy, m.UpdatedBy, m.ConfirmedBy, m.ConfirmedAt,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *markerRepoPG) Update(ctx context.Context, m *PatientMarker) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient_marker SET
			category=$2, marker_type=$3, display_name=$4, body_region=$5,
			position_x=$6, position_y=$7, body_view=$8, details=$9,
			requires_attention=$10, updated_by=$11, updated_at=NOW()
		WHERE id = $1 AND is_active AND status <> 'rejected'
		RETURNING updated_at`,
		m.ID, m.Category, m.MarkerType, m.DisplayName, m.BodyRegion,
		m.PositionX, m.PositionY, m.BodyView, m.Details,
		m.RequiresAttention, m.UpdatedBy,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMarkerNotFound
	}
	return err
}

func (r *markerRepoPG) Confirm(ctx context.Context, id uuid.UUID, actingUser *string) (bool, error) {
	return r.exec(ctx, `
		UPDATE patient_marker SET
			status='confirmed', requires_attention=FALSE,
			confirmed_by=$2, confirmed_at=NOW(), updated_by=$2, updated_at=NOW()
		WHERE id = $1 AND status = 'pending_confirmation' AND is_active`, id, actingUser)
}

func (r *markerRepoPG) Reject(ctx context.Context, id uuid.UUID, actingUser *string) (bool, error) {
	return r.exec(ctx, `
		UPDATE patient_marker SET status='rejected', updated_by=$2, updated_at=NOW()
		WHERE id = $1 AND status = 'pending_confirmation' AND is_active`, id, actingUser)
}

func (r *markerRepoPG) Deactivate(ctx context.Context, id uuid.UUID, actingUser *string) (bool, error) {
	return r.exec(ctx, `
		UPDATE patient_marker SET is_active=FALSE, updated_by=$2, updated_at=NOW()
		WHERE id = $1 AND status = 'confirmed' AND is_active`, id, actingUser)
}

func (r *markerRepoPG) exec(ctx context.Context, sql string, id uuid.UUID, actingUser *string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, sql, id, actingUser)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *markerRepoPG) ConfirmAllPending(ctx context.Context, patientID uuid.UUID, actingUser *string) ([]*PatientMarker, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		WITH prev AS (
			SELECT `+markerCols+` FROM patient_marker
			WHERE patient_id = $1 AND status = 'pending_confirmation' AND is_active
			FOR UPDATE
		), confirmed AS (
			UPDATE patient_marker m SET
				status='confirmed', requires_attention=FALSE,
				confirmed_by=$2, confirmed_at=NOW(), updated_by=$2, updated_at=NOW()
			FROM prev WHERE m.id = prev.id
		)
		SELECT `+markerCols+` FROM prev ORDER BY created_at, id`, patientID, actingUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMarkers(rows)
}

func scanMarker(row pgx.Row) (*PatientMarker, error) {
	var m PatientMarker
	err := row.Scan(
		&m.ID, &m.PatientID, &m.Category, &m.MarkerType, &m.DisplayName, &m.BodyRegion,
		&m.PositionX, &m.PositionY, &m.BodyView, &m.Source, &m.Status, &m.IsActive,
		&m.ConfidenceScore, &m.Details, &m.RequiresAttention,
		&m.CreatedBy, &m.UpdatedBy, &m.ConfirmedBy, &m.ConfirmedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMarkerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMarkers(rows pgx.Rows) ([]*PatientMarker, error) {
	var markers []*PatientMarker
	for rows.Next() {
		m, err := scanMarker(rows)
		if err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

type historyRepoPG struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) HistoryStore {
	return &historyRepoPG{pool: pool}
}

func (r *historyRepoPG) conn(ctx context.Context) querier { return conn(ctx, r.pool) }

const historyCols = `id, marker_id, action, previous_values, acting_user, created_at`

func (r *historyRepoPG) Append(ctx context.Context, e *HistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO marker_history (id, marker_id, action, previous_values, acting_user)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		e.ID, e.MarkerID, e.Action, e.PreviousValues, e.ActingUser,
	).Scan(&e.CreatedAt)
}

func (r *historyRepoPG) ListForMarker(ctx context.Context, markerID uuid.UUID, limit, offset int) ([]*HistoryEntry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM marker_history WHERE marker_id = $1`, markerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+historyCols+` FROM marker_history WHERE marker_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		markerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.MarkerID, &e.Action, &e.PreviousValues, &e.ActingUser, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
