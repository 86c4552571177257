package bodymap

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/bodymap/internal/platform/auth"
	"github.com/ehr/bodymap/internal/platform/fhir"
	"github.com/ehr/bodymap/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	// Admins pass every role check.
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	readGroup.GET("/body-map/regions", h.ListRegions)
	readGroup.GET("/body-map/regions/closest", h.ClosestRegion)
	readGroup.GET("/body-map/marker-types", h.ListMarkerTypes)
	readGroup.GET("/body-map/marker-types/:type", h.GetMarkerType)
	readGroup.POST("/body-map/resolve", h.Resolve)
	readGroup.GET("/patients/:patient_id/markers", h.GetPatientMarkers)
	readGroup.GET("/markers/:id", h.GetMarker)
	readGroup.GET("/markers/:id/history", h.GetMarkerHistory)

	// Lifecycle writes
	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	writeGroup.POST("/patients/:patient_id/markers", h.CreateMarker)
	writeGroup.POST("/patients/:patient_id/markers/from-text", h.CreateMarkerFromText)
	writeGroup.POST("/patients/:patient_id/markers/confirm-all", h.ConfirmAllPending)
	writeGroup.POST("/patients/:patient_id/markers/refresh", h.RefreshPatientMarkers)
	writeGroup.PATCH("/markers/:id", h.UpdateMarker)
	writeGroup.POST("/markers/:id/confirm", h.ConfirmMarker)
	writeGroup.POST("/markers/:id/reject", h.RejectMarker)
	writeGroup.POST("/markers/:id/deactivate", h.DeactivateMarker)

	// FHIR read endpoints
	fhirRead := fhirGroup.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	fhirRead.GET("/BodyStructure/:id", h.GetMarkerFHIR)
}

// httpError maps engine errors onto HTTP statuses.
func httpError(err error) error {
	var (
		ve *ValidationError
		nf *NotFoundError
		se *StateError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &nf):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &se):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Reference data --

func (h *Handler) ListRegions(c echo.Context) error {
	regions := h.svc.Regions()
	switch v := View(c.QueryParam("view")); {
	case v == "":
		all := append(regions.RegionsForView(ViewFront), regions.RegionsForView(ViewBack)...)
		return c.JSON(http.StatusOK, all)
	case v.Valid():
		return c.JSON(http.StatusOK, regions.RegionsForView(v))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "view must be front or back")
	}
}

func (h *Handler) ClosestRegion(c echo.Context) error {
	x, errX := strconv.ParseFloat(c.QueryParam("x"), 64)
	y, errY := strconv.ParseFloat(c.QueryParam("y"), 64)
	if errX != nil || errY != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "x and y must be numbers")
	}
	view := View(c.QueryParam("view"))
	if view == "" {
		view = ViewFront
	}
	if !view.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "view must be front or back")
	}
	r, ok := h.svc.Regions().FindClosestRegion(x, y, view)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no regions for view "+string(view))
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListMarkerTypes(c echo.Context) error {
	var badge *bool
	if raw := c.QueryParam("badge"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "badge must be true or false")
		}
		badge = &b
	}
	category := Category(c.QueryParam("category"))
	if category != "" && !category.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
	}
	return c.JSON(http.StatusOK, h.svc.Catalog().Filter(category, badge))
}

func (h *Handler) GetMarkerType(c echo.Context) error {
	def, ok := h.svc.Catalog().Definition(c.Param("type"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "marker type not found")
	}
	return c.JSON(http.StatusOK, def)
}

type resolveRequest struct {
	Text string `json:"text"`
}

func (h *Handler) Resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, ok := h.svc.Catalog().Resolve(req.Text)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no marker type matches the text")
	}
	return c.JSON(http.StatusOK, res)
}

// -- Patient markers --

func (h *Handler) GetPatientMarkers(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	board, err := h.svc.Board(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) RefreshPatientMarkers(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	summary, err := h.svc.Refresh(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, h.svc.Catalog().BuildBoard(summary))
}

func (h *Handler) CreateMarker(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	var req CreateMarkerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.PatientID = patientID
	m, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

type fromTextRequest struct {
	Text            string   `json:"text"`
	Source          Source   `json:"source"`
	ConfidenceScore *float64 `json:"confidence_score"`
}

func (h *Handler) CreateMarkerFromText(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	var req fromTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.CreateFromText(c.Request().Context(), patientID, req.Text, req.Source, req.ConfidenceScore)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ConfirmAllPending(c echo.Context) error {
	patientID, err := parseID(c, "patient_id")
	if err != nil {
		return err
	}
	n, err := h.svc.ConfirmAllPending(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"confirmed": n})
}

// -- Single marker --

func (h *Handler) GetMarker(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMarker(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateMarker(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var patch MarkerPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Update(c.Request().Context(), id, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ConfirmMarker(c echo.Context) error {
	return h.transition(c, h.svc.Confirm)
}

func (h *Handler) RejectMarker(c echo.Context) error {
	return h.transition(c, h.svc.Reject)
}

func (h *Handler) DeactivateMarker(c echo.Context) error {
	return h.transition(c, h.svc.Deactivate)
}

func (h *Handler) transition(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*Transition, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	t, err := op(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetMarkerHistory(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.History(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

// -- FHIR --

func (h *Handler) GetMarkerFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid id"))
	}
	m, err := h.svc.GetMarker(c.Request().Context(), id)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("BodyStructure", c.Param("id")))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, m.ToFHIR(h.svc.Regions()))
}
