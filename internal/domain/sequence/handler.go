package sequence

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/auth"
)

type Handler struct {
	gen *Generator
}

func NewHandler(gen *Generator) *Handler {
	return &Handler{gen: gen}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleAdmin))
	g.GET("/sequences/:kind", h.GetCurrent)
}

// GetCurrent shows how much of this month's capacity a counter has used.
func (h *Handler) GetCurrent(c echo.Context) error {
	kind := Kind(c.Param("kind"))
	counter, err := h.gen.Current(c.Request().Context(), kind)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"counter":   counter,
		"ceiling":   kind.Ceiling(),
		"remaining": kind.Ceiling() - counter.Count,
	})
}
