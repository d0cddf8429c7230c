package result

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/calculators", auth.RequireRole(auth.RoleReception, auth.RoleLabTech, auth.RolePathologist))
	g.POST("/bmi", h.CalculateBMI)
}

type bmiRequest struct {
	WeightKg decimal.Decimal `json:"weight_kg"`
	HeightCm decimal.Decimal `json:"height_cm"`
}

func (h *Handler) CalculateBMI(c echo.Context) error {
	var req bmiRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := BMI(req.WeightKg, req.HeightCm)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}
