package bodymap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bodymap/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func jsonRequest(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "/", nil)
	} else {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateMarker(t *testing.T) {
	h, e := newTestHandler()

	body := `{"marker_type":"foley_catheter","display_name":"Foley","body_region":"pelvis","source":"smartscribe","confidence_score":0.92}`
	c, rec := jsonRequest(e, http.MethodPost, body)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())

	if err := h.CreateMarker(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var m PatientMarker
	json.Unmarshal(rec.Body.Bytes(), &m)
	if m.Status != StatusPending || m.BodyRegion != "pelvis" {
		t.Errorf("unexpected marker %+v", m)
	}
}

func TestHandler_CreateMarker_Errors(t *testing.T) {
	h, e := newTestHandler()
	pid := uuid.New().String()

	tests := []struct {
		name   string
		param  string
		body   string
		status int
	}{
		{"bad patient id", "nope", `{}`, http.StatusBadRequest},
		{"missing type", pid, `{"display_name":"x","body_region":"pelvis"}`, http.StatusBadRequest},
		{"unknown type", pid, `{"marker_type":"hoverboard","display_name":"x","body_region":"pelvis"}`, http.StatusNotFound},
		{"unknown region", pid, `{"marker_type":"foley_catheter","display_name":"x","body_region":"tail"}`, http.StatusNotFound},
		{"position out of range", pid, `{"marker_type":"foley_catheter","display_name":"x","body_region":"pelvis","position_x":140}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := jsonRequest(e, http.MethodPost, tt.body)
			c.SetParamNames("patient_id")
			c.SetParamValues(tt.param)
			err := h.CreateMarker(c)
			if got := statusOf(t, err); got != tt.status {
				t.Errorf("expected %d, got %d", tt.status, got)
			}
		})
	}
}

func TestHandler_CreateMarkerFromText(t *testing.T) {
	h, e := newTestHandler()

	c, rec := jsonRequest(e, http.MethodPost, `{"text":"right femoral central line","source":"smartscribe","confidence_score":0.5}`)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())
	if err := h.CreateMarkerFromText(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var m PatientMarker
	json.Unmarshal(rec.Body.Bytes(), &m)
	if m.MarkerType != "central_line" || !m.RequiresAttention {
		t.Errorf("unexpected marker %+v", m)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"text":"patient ambulating well"}`)
	c.SetParamNames("patient_id")
	c.SetParamValues(uuid.New().String())
	if got := statusOf(t, h.CreateMarkerFromText(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestHandler_ConfirmMarker(t *testing.T) {
	h, e := newTestHandler()
	m := createPending(t, h.svc, uuid.New())

	c, rec := jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if err := h.ConfirmMarker(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var tr Transition
	json.Unmarshal(rec.Body.Bytes(), &tr)
	if tr.Marker == nil || tr.Marker.Status != StatusConfirmed || tr.PendingDelta != -1 {
		t.Errorf("unexpected transition %+v", tr)
	}

	// second confirm conflicts
	c, _ = jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if got := statusOf(t, h.ConfirmMarker(c)); got != http.StatusConflict {
		t.Errorf("expected 409, got %d", got)
	}
}

func TestHandler_RejectAndDeactivate_NotFound(t *testing.T) {
	h, e := newTestHandler()
	for name, fn := range map[string]echo.HandlerFunc{
		"reject":     h.RejectMarker,
		"deactivate": h.DeactivateMarker,
	} {
		c, _ := jsonRequest(e, http.MethodPost, "")
		c.SetParamNames("id")
		c.SetParamValues(uuid.New().String())
		if got := statusOf(t, fn(c)); got != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", name, got)
		}
	}
}

func TestHandler_UpdateMarker(t *testing.T) {
	h, e := newTestHandler()
	m := createConfirmed(t, h.svc, uuid.New())

	c, rec := jsonRequest(e, http.MethodPatch, `{"display_name":"Chest Tube #2","position_x":60}`)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if err := h.UpdateMarker(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got PatientMarker
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.DisplayName != "Chest Tube #2" || got.PositionX != 60 {
		t.Errorf("patch not applied: %+v", got)
	}

	c, _ = jsonRequest(e, http.MethodPatch, `{}`)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if code := statusOf(t, h.UpdateMarker(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetPatientMarkers(t *testing.T) {
	h, e := newTestHandler()
	pid := uuid.New()
	createPending(t, h.svc, pid)
	createConfirmed(t, h.svc, pid)
	if _, err := h.svc.Create(context.Background(), CreateMarkerRequest{
		PatientID: pid, MarkerType: "code_dnr", DisplayName: "DNR", BodyRegion: "head",
	}); err != nil {
		t.Fatalf("create badge: %v", err)
	}

	c, rec := jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("patient_id")
	c.SetParamValues(pid.String())
	if err := h.GetPatientMarkers(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var board Board
	json.Unmarshal(rec.Body.Bytes(), &board)
	if len(board.Markers) != 3 || len(board.Anatomical) != 2 {
		t.Errorf("expected 3 markers with 2 anatomical, got %d/%d", len(board.Markers), len(board.Anatomical))
	}
	if board.PendingCount != 1 {
		t.Errorf("expected 1 pending, got %d", board.PendingCount)
	}
	if len(board.Badges.Top) != 1 {
		t.Errorf("expected DNR badge on top, got %+v", board.Badges)
	}
}

func TestHandler_ConfirmAllPending(t *testing.T) {
	h, e := newTestHandler()
	pid := uuid.New()
	createPending(t, h.svc, pid)
	createPending(t, h.svc, pid)

	c, rec := jsonRequest(e, http.MethodPost, "")
	c.SetParamNames("patient_id")
	c.SetParamValues(pid.String())
	if err := h.ConfirmAllPending(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]int
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["confirmed"] != 2 {
		t.Errorf("expected 2 confirmed, got %v", out)
	}
}

func TestHandler_GetMarkerHistory(t *testing.T) {
	h, e := newTestHandler()
	m := createPending(t, h.svc, uuid.New())
	h.svc.Reject(context.Background(), m.ID)

	c, rec := jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if err := h.GetMarkerHistory(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out struct {
		Data  []HistoryEntry `json:"data"`
		Total int            `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Total != 2 || len(out.Data) != 2 || out.Data[0].Action != ActionRejected {
		t.Errorf("unexpected history %+v", out)
	}
}

func TestHandler_ListRegions(t *testing.T) {
	h, e := newTestHandler()

	c, rec := jsonRequest(e, http.MethodGet, "")
	if err := h.ListRegions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var all []BodyRegion
	json.Unmarshal(rec.Body.Bytes(), &all)
	if len(all) != h.svc.Regions().Len() {
		t.Errorf("expected every region, got %d", len(all))
	}

	req := httptest.NewRequest(http.MethodGet, "/?view=back", nil)
	rec = httptest.NewRecorder()
	if err := h.ListRegions(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var back []BodyRegion
	json.Unmarshal(rec.Body.Bytes(), &back)
	for _, r := range back {
		if r.View != ViewBack {
			t.Errorf("region %s is not a back region", r.ID)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/?view=side", nil)
	if got := statusOf(t, h.ListRegions(e.NewContext(req, httptest.NewRecorder()))); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_ClosestRegion(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/?x=50&y=5", nil)
	rec := httptest.NewRecorder()
	if err := h.ClosestRegion(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var r BodyRegion
	json.Unmarshal(rec.Body.Bytes(), &r)
	if r.ID != "head" {
		t.Errorf("expected head, got %s", r.ID)
	}

	req = httptest.NewRequest(http.MethodGet, "/?x=abc&y=5", nil)
	if got := statusOf(t, h.ClosestRegion(e.NewContext(req, httptest.NewRecorder()))); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_ListMarkerTypes(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/?badge=true", nil)
	rec := httptest.NewRecorder()
	if err := h.ListMarkerTypes(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var defs []MarkerTypeDefinition
	json.Unmarshal(rec.Body.Bytes(), &defs)
	if len(defs) == 0 {
		t.Fatal("expected badge types")
	}
	for _, d := range defs {
		if !d.IsStatusBadge {
			t.Errorf("%s is not a badge type", d.Type)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/?category=urgent", nil)
	if got := statusOf(t, h.ListMarkerTypes(e.NewContext(req, httptest.NewRecorder()))); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_GetMarkerType(t *testing.T) {
	h, e := newTestHandler()

	c, _ := jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("type")
	c.SetParamValues("warp_drive")
	if got := statusOf(t, h.GetMarkerType(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestHandler_Resolve(t *testing.T) {
	h, e := newTestHandler()

	c, rec := jsonRequest(e, http.MethodPost, `{"text":"Chest tube placed left side"}`)
	if err := h.Resolve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res Resolution
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Type != "chest_tube" || res.Placement.BodyRegion != "chest_left" || !res.Adjusted {
		t.Errorf("unexpected resolution %+v", res)
	}

	c, _ = jsonRequest(e, http.MethodPost, `{"text":"no devices"}`)
	if got := statusOf(t, h.Resolve(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestHandler_GetMarkerFHIR(t *testing.T) {
	h, e := newTestHandler()
	m := createPending(t, h.svc, uuid.New())

	c, rec := jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())
	if err := h.GetMarkerFHIR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["resourceType"] != "BodyStructure" {
		t.Errorf("expected BodyStructure, got %v", out["resourceType"])
	}

	c, rec = jsonRequest(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.GetMarkerFHIR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_RoutesRequireRole(t *testing.T) {
	h, e := newTestHandler()
	var roles []string
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), "u1", roles...)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(e.Group("/api/v1"), e.Group("/fhir"))

	tests := []struct {
		roles []string
		want  int
	}{
		{nil, http.StatusForbidden},
		{[]string{"billing"}, http.StatusForbidden},
		{[]string{auth.RoleNurse}, http.StatusOK},
		{[]string{auth.RoleAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		roles = tt.roles
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/body-map/regions", nil))
		if rec.Code != tt.want {
			t.Errorf("roles %v: expected %d, got %d", tt.roles, tt.want, rec.Code)
		}
	}
}
