package hipaa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/bodymap/internal/platform/middleware"
)

type fakeExecer struct {
	sql  string
	args []interface{}
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.CommandTag{}, f.err
}

func TestInsertAccess_Args(t *testing.T) {
	pid := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := middleware.AuditEntry{
		RequestID:    "req-1",
		UserID:       "nurse-1",
		UserRoles:    []string{"nurse"},
		PatientID:    pid.String(),
		ResourceType: "markers",
		Action:       "create",
		Method:       "POST",
		Path:         "/api/v1/patients/" + pid.String() + "/markers",
		StatusCode:   201,
		IPAddress:    "203.0.113.9",
		Timestamp:    now,
	}

	f := &fakeExecer{}
	if err := insertAccess(context.Background(), f, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.args) != 14 {
		t.Fatalf("expected 14 args, got %d", len(f.args))
	}
	if got := f.args[2].(*string); got == nil || *got != "nurse-1" {
		t.Errorf("unexpected user arg %v", f.args[2])
	}
	if got := f.args[4].(*uuid.UUID); got == nil || *got != pid {
		t.Errorf("unexpected patient arg %v", f.args[4])
	}
	if got := f.args[6].(*uuid.UUID); got != nil {
		t.Errorf("expected nil resource id, got %v", got)
	}
	if f.args[10] != 201 || f.args[13] != now {
		t.Errorf("unexpected status/time args %v %v", f.args[10], f.args[13])
	}
}

func TestInsertAccess_Defaults(t *testing.T) {
	f := &fakeExecer{}
	insertAccess(context.Background(), f, middleware.AuditEntry{ResourceID: uuid.NewString()})

	if f.args[2].(*string) != nil {
		t.Error("anonymous access should store a NULL user")
	}
	if roles := f.args[3].([]string); roles == nil || len(roles) != 0 {
		t.Errorf("expected empty roles array, got %v", roles)
	}
	if f.args[13].(time.Time).IsZero() {
		t.Error("expected accessed_at to default to now")
	}
}

func TestInsertAccess_Error(t *testing.T) {
	f := &fakeExecer{err: errors.New("relation does not exist")}
	if err := insertAccess(context.Background(), f, middleware.AuditEntry{PatientID: uuid.NewString()}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecordAccess_SkipsNonPHI(t *testing.T) {
	// nil pool: a non-PHI entry must return before touching the database
	a := NewAccessLog(nil)
	entry := middleware.AuditEntry{ResourceType: "body-map", Path: "/api/v1/body-map/regions"}
	if err := a.RecordAccess(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
