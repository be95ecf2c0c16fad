// Package handler exposes the tracker importer over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/importer"
	"github.com/ehr/tracker/internal/tracker/validation"
)

// Importer is satisfied by *importer.Service.
type Importer interface {
	Import(ctx context.Context, username string, payload *tracker.Payload, params importer.Params) (*importer.ImportReport, error)
}

type Handler struct {
	svc Importer
}

func NewHandler(svc Importer) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/tracker")

	g.POST("", h.Import, auth.RequireRole("data-entry"), auth.RequireScope("tracker", "write"))
	g.POST("/validate", h.Validate, auth.RequireScope("tracker", "read"))

	g.GET("/codes", h.Codes)
}

// Import runs a full import. A report with status ERROR is still a 200: the
// import ran and the report says what was rejected.
func (h *Handler) Import(c echo.Context) error {
	return h.run(c, false)
}

// Validate is Import with dryRun forced on.
func (h *Handler) Validate(c echo.Context) error {
	return h.run(c, true)
}

func (h *Handler) run(c echo.Context, dryRun bool) error {
	params, err := importer.ParseParams(
		c.QueryParam("importStrategy"),
		c.QueryParam("atomicMode"),
		c.QueryParam("validationMode"),
		c.QueryParam("dryRun"),
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if dryRun {
		params.DryRun = true
	}

	var payload tracker.Payload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tracker payload: "+err.Error())
	}

	username := auth.UsernameFromContext(c.Request().Context())
	if username == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}

	report, err := h.svc.Import(c.Request().Context(), username, &payload, params)
	if err != nil {
		return echo.NewHTTPError(importer.ErrorStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Codes(c echo.Context) error {
	return c.JSON(http.StatusOK, validation.Catalogue())
}
