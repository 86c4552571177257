package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/bodymap/internal/platform/auth"
)

// AuditEntry records who touched which patient's body map, and how.
type AuditEntry struct {
	UserID       string
	UserRoles    []string
	ResourceType string
	ResourceID   string
	PatientID    string
	Action       string // read, create, update, delete
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// AuditRecorder persists audit entries. ctx still carries the request's
// tenant connection.
type AuditRecorder interface {
	RecordAccess(ctx context.Context, entry AuditEntry) error
}

type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(ctx context.Context, entry AuditEntry) error {
	return f(ctx, entry)
}

// Audit logs every /api/v1 and /fhir request after it has been handled.
// Entries are also handed to the first recorder, if any.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			status := c.Response().Status
			var he *echo.HTTPError
			if err != nil && errors.As(err, &he) {
				status = he.Code
			}
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     httpMethodToAction(req.Method, path),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			entry.ResourceType, entry.ResourceID, entry.PatientID = classifyPath(path)

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(ctx, entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/fhir/") || strings.HasPrefix(path, "/api/v1/")
}

// httpMethodToAction maps a request to an audit action. Lifecycle
// transitions (confirm, reject, deactivate) are POSTs that modify an
// existing marker and count as updates; resolve is a read.
func httpMethodToAction(method, path string) string {
	switch method {
	case http.MethodPost:
		switch {
		case strings.HasSuffix(path, "/confirm"),
			strings.HasSuffix(path, "/reject"),
			strings.HasSuffix(path, "/deactivate"),
			strings.HasSuffix(path, "/confirm-all"),
			strings.HasSuffix(path, "/refresh"):
			return "update"
		case strings.HasSuffix(path, "/resolve"):
			return "read"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// classifyPath extracts the resource type, resource id and patient id from
// a request path.
//
//	/api/v1/patients/<pid>/markers     -> markers, "", pid
//	/api/v1/markers/<id>/confirm       -> markers, id, ""
//	/api/v1/body-map/marker-types/x    -> body-map, "", ""
//	/fhir/BodyStructure/<id>           -> BodyStructure, id, ""
func classifyPath(path string) (resourceType, resourceID, patientID string) {
	var segments []string
	switch {
	case strings.HasPrefix(path, "/fhir/"):
		segments = strings.Split(strings.TrimPrefix(path, "/fhir/"), "/")
	case strings.HasPrefix(path, "/api/v1/"):
		segments = strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	}
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", "", ""
	}

	if segments[0] == "patients" && len(segments) > 1 && isUUID(segments[1]) {
		patientID = segments[1]
		if len(segments) > 2 && segments[2] != "" {
			return segments[2], "", patientID
		}
		return "patients", "", patientID
	}
	if len(segments) > 1 && isUUID(segments[1]) {
		resourceID = segments[1]
	}
	return segments[0], resourceID, ""
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
