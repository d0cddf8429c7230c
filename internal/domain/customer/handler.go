package customer

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
	"github.com/labflow/labflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleLabTech, auth.RoleCashier))
	g.POST("/labs/:lab_id/customers", h.Register)
	g.GET("/labs/:lab_id/customers", h.Search)
	g.GET("/customers/:id", h.Get)
	g.GET("/customers/hn/:hn", h.GetByHN)
	g.PUT("/customers/:id", h.Update)
}

func (h *Handler) Register(c echo.Context) error {
	labID, err := uuid.Parse(c.Param("lab_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lab_id")
	}
	var cust Customer
	if err := c.Bind(&cust); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&cust); err != nil {
		return apperr.HTTPError(err)
	}
	cust.LabID = labID
	ctx := c.Request().Context()
	if err := h.svc.Register(ctx, &cust, auth.UserIDFromContext(ctx)); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, cust)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cust, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cust)
}

func (h *Handler) GetByHN(c echo.Context) error {
	cust, err := h.svc.GetByHN(c.Request().Context(), c.Param("hn"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cust)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var cust Customer
	if err := c.Bind(&cust); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&cust); err != nil {
		return apperr.HTTPError(err)
	}
	cust.ID = id
	if err := h.svc.Update(c.Request().Context(), &cust); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cust)
}

func (h *Handler) Search(c echo.Context) error {
	labID, err := uuid.Parse(c.Param("lab_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lab_id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), labID, c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
