package activity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
	"github.com/labflow/labflow/pkg/pagination"
)

type Handler struct {
	log *Log
}

func NewHandler(log *Log) *Handler {
	return &Handler{log: log}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/labs/:lab_id/activities", h.List, auth.RequireRole(auth.RoleLabTech, auth.RolePathologist))
}

func (h *Handler) List(c echo.Context) error {
	labID, err := uuid.Parse(c.Param("lab_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lab_id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.log.List(c.Request().Context(), labID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
