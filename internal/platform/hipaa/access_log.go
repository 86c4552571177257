// Package hipaa persists the PHI access trail required for marker reads and
// lifecycle changes.
package hipaa

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/bodymap/internal/platform/db"
	"github.com/ehr/bodymap/internal/platform/middleware"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// AccessLog writes audit entries to the tenant's phi_access_log table. It is
// a middleware.AuditRecorder.
type AccessLog struct {
	pool *pgxpool.Pool
}

func NewAccessLog(pool *pgxpool.Pool) *AccessLog {
	return &AccessLog{pool: pool}
}

// RecordAccess uses the tenant-scoped connection from ctx when there is one
// and a pooled connection otherwise. Entries that name neither a patient nor
// a marker are not PHI access and are dropped.
func (a *AccessLog) RecordAccess(ctx context.Context, entry middleware.AuditEntry) error {
	if !touchesPHI(entry) {
		return nil
	}
	if conn := db.ConnFromContext(ctx); conn != nil {
		return insertAccess(ctx, conn, entry)
	}

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("phi access log: acquire connection: %w", err)
	}
	defer conn.Release()
	return insertAccess(ctx, conn, entry)
}

func touchesPHI(e middleware.AuditEntry) bool {
	return e.PatientID != "" || e.ResourceID != ""
}

const insertAccessSQL = `
	INSERT INTO phi_access_log (
		id, request_id, user_id, user_roles, patient_id, resource_type, resource_id,
		action, method, path, status_code, ip_address, user_agent, accessed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

func insertAccess(ctx context.Context, q execer, e middleware.AuditEntry) error {
	accessedAt := e.Timestamp
	if accessedAt.IsZero() {
		accessedAt = time.Now().UTC()
	}
	roles := e.UserRoles
	if roles == nil {
		roles = []string{}
	}
	_, err := q.Exec(ctx, insertAccessSQL,
		uuid.New(), e.RequestID, nullable(e.UserID), roles,
		parseUUID(e.PatientID), e.ResourceType, parseUUID(e.ResourceID),
		e.Action, e.Method, e.Path, e.StatusCode, e.IPAddress, e.UserAgent, accessedAt,
	)
	if err != nil {
		return fmt.Errorf("phi access log: insert: %w", err)
	}
	return nil
}

func parseUUID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
