package catalog

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
	read := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleLabTech, auth.RolePathologist, auth.RoleCashier))
	read.GET("/labs", h.ListLabs)
	read.GET("/labs/:lab_id", h.GetLab)
	read.GET("/labs/:lab_id/containers", h.ListContainers)
	read.GET("/labs/:lab_id/choice-sets", h.ListChoiceSets)
	read.GET("/choice-sets/:id", h.GetChoiceSet)
	read.GET("/labs/:lab_id/tests", h.ListTests)
	read.GET("/tests/:id", h.GetTest)
	read.GET("/labs/:lab_id/profiles", h.ListProfiles)
	read.GET("/profiles/:id", h.GetProfile)
	read.GET("/labs/:lab_id/packages", h.ListPackages)
	read.GET("/packages/:id", h.GetPackage)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/labs", h.CreateLab)
	write.POST("/labs/:lab_id/containers", h.CreateContainer)
	write.PUT("/containers/:id", h.UpdateContainer)
	write.POST("/labs/:lab_id/choice-sets", h.CreateChoiceSet)
	write.POST("/choice-sets/:id/items", h.AddChoiceItem)
	write.DELETE("/choice-sets/:id/items/:item_id", h.RemoveChoiceItem)
	write.POST("/labs/:lab_id/tests", h.CreateTest)
	write.PUT("/tests/:id", h.UpdateTest)
	write.POST("/labs/:lab_id/profiles", h.CreateProfile)
	write.PUT("/profiles/:id", h.UpdateProfile)
	write.POST("/labs/:lab_id/packages", h.CreatePackage)
	write.PUT("/packages/:id", h.UpdatePackage)
	write.POST("/packages/:id/expire", h.ExpirePackage)
}

func paramID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(v); err != nil {
		return apperr.HTTPError(err)
	}
	return nil
}

// -- Laboratory Handlers --

func (h *Handler) CreateLab(c echo.Context) error {
	var l Laboratory
	if err := bind(c, &l); err != nil {
		return err
	}
	if err := h.svc.CreateLab(c.Request().Context(), &l); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLab(c echo.Context) error {
	id, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	l, err := h.svc.GetLab(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLabs(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLabs(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- SpecimenContainer Handlers --

func (h *Handler) CreateContainer(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	var sc SpecimenContainer
	if err := bind(c, &sc); err != nil {
		return err
	}
	sc.LabID = labID
	if err := h.svc.CreateContainer(c.Request().Context(), &sc); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, sc)
}

func (h *Handler) UpdateContainer(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	current, err := h.svc.GetContainer(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	sc := *current
	if err := bind(c, &sc); err != nil {
		return err
	}
	sc.ID, sc.LabID = id, current.LabID
	if err := h.svc.UpdateContainer(c.Request().Context(), &sc); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *Handler) ListContainers(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListContainers(c.Request().Context(), labID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- ChoiceSet Handlers --

func (h *Handler) CreateChoiceSet(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	var cs ChoiceSet
	if err := bind(c, &cs); err != nil {
		return err
	}
	cs.LabID = labID
	if err := h.svc.CreateChoiceSet(c.Request().Context(), &cs); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, cs)
}

func (h *Handler) GetChoiceSet(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	cs, err := h.svc.GetChoiceSet(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) ListChoiceSets(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListChoiceSets(c.Request().Context(), labID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) AddChoiceItem(c echo.Context) error {
	setID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var it ChoiceItem
	if err := bind(c, &it); err != nil {
		return err
	}
	it.ChoiceSetID = setID
	if err := h.svc.AddChoiceItem(c.Request().Context(), &it); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) RemoveChoiceItem(c echo.Context) error {
	setID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	itemID, err := paramID(c, "item_id")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveChoiceItem(c.Request().Context(), setID, itemID); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Test Handlers --

func (h *Handler) CreateTest(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	t := Test{Active: true}
	if err := bind(c, &t); err != nil {
		return err
	}
	t.LabID = labID
	if err := h.svc.CreateTest(c.Request().Context(), &t); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTest(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTest(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTest(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var t Test
	if err := bind(c, &t); err != nil {
		return err
	}
	t.ID = id
	if err := h.svc.UpdateTest(c.Request().Context(), &t); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTests(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"
	items, total, err := h.svc.ListTests(c.Request().Context(), labID, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- TestProfile Handlers --

type profileView struct {
	*TestProfile
	Tests          []*Test `json:"tests"`
	EffectivePrice string  `json:"effective_price"`
}

func (h *Handler) CreateProfile(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	var p TestProfile
	if err := bind(c, &p); err != nil {
		return err
	}
	p.LabID = labID
	if err := h.svc.CreateProfile(c.Request().Context(), &p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProfile(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetProfile(ctx, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	tests, err := h.svc.ProfileTests(ctx, p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, profileView{
		TestProfile:    p,
		Tests:          tests,
		EffectivePrice: p.EffectivePrice(tests).StringFixed(2),
	})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var p TestProfile
	if err := bind(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdateProfile(c.Request().Context(), &p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProfiles(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListProfiles(c.Request().Context(), labID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- ServicePackage Handlers --

type packageView struct {
	*ServicePackage
	AllTests []uuid.UUID `json:"all_tests"`
}

func (h *Handler) CreatePackage(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	var p ServicePackage
	if err := bind(c, &p); err != nil {
		return err
	}
	p.LabID = labID
	if err := h.svc.CreatePackage(c.Request().Context(), &p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPackage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPackage(ctx, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	all, err := h.svc.PackageTests(ctx, p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, packageView{ServicePackage: p, AllTests: all})
}

func (h *Handler) UpdatePackage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var p ServicePackage
	if err := bind(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePackage(c.Request().Context(), &p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ExpirePackage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.ExpirePackage(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPackages(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListPackages(c.Request().Context(), labID, c.QueryParam("available") == "true")
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}
