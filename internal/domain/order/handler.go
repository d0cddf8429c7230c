package order

import (
	"net/http"
	"time"

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
	read.GET("/labs/:lab_id/orders", h.ListOrders)
	read.GET("/orders/:id", h.GetOrder)
	read.GET("/orders/code/:code", h.GetOrderByCode)
	read.GET("/reject-reasons", h.ListRejectReasons)
	read.GET("/records/:id/revisions", h.ListRecordRevisions)

	reception := api.Group("", auth.RequireRole(auth.RoleReception))
	reception.POST("/labs/:lab_id/orders", h.CreateOrder)
	reception.PUT("/orders/:id/selection", h.UpdateSelection)
	reception.POST("/orders/:id/cancel", h.CancelOrder)

	lab := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleLabTech))
	lab.GET("/orders/:id/containers", h.PlanContainers)
	lab.POST("/records/:id/cancel", h.CancelRecord)
	lab.POST("/records/:id/receive", h.ReceiveRecord)

	tech := api.Group("", auth.RequireRole(auth.RoleLabTech, auth.RolePathologist))
	tech.POST("/records/:id/result", h.EnterResult)
	tech.POST("/records/:id/reject", h.RejectRecord)
	tech.GET("/labs/:lab_id/rejected-records", h.ListRejectedRecords)

	path := api.Group("", auth.RequireRole(auth.RolePathologist))
	path.POST("/orders/:id/approve", h.ApproveOrder)
	path.POST("/orders/:id/unapprove", h.UnapproveOrder)
}

func paramID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func actor(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// -- Order Handlers --

type createOrderRequest struct {
	CustomerID uuid.UUID `json:"customer_id" validate:"required"`
	Selection
}

func (h *Handler) CreateOrder(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	o, err := h.svc.CreateOrder(c.Request().Context(), labID, req.CustomerID, req.Selection, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetOrderByCode(c echo.Context) error {
	o, err := h.svc.GetOrderByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	f := ListFilter{PendingOnly: c.QueryParam("pending") == "true"}
	if raw := c.QueryParam("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid customer_id")
		}
		f.CustomerID = &id
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOrders(c.Request().Context(), labID, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateSelection(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var sel Selection
	if err := c.Bind(&sel); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	o, err := h.svc.UpdateOrderSelection(c.Request().Context(), id, sel, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.CancelOrder(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ApproveOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.ApproveOrder(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) UnapproveOrder(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	o, err := h.svc.UnapproveOrder(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) PlanContainers(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	plan, err := h.svc.PlanContainers(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

// -- Record Handlers --

func (h *Handler) CancelRecord(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.CancelRecord(c.Request().Context(), id, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type receiveRequest struct {
	ReceivedAt *time.Time `json:"received_at"`
}

func (h *Handler) ReceiveRecord(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req receiveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var at time.Time
	if req.ReceivedAt != nil {
		at = *req.ReceivedAt
	}
	r, err := h.svc.ReceiveRecord(c.Request().Context(), id, actor(c), at)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type resultRequest struct {
	Value   string `json:"value" validate:"required"`
	Comment string `json:"comment"`
}

func (h *Handler) EnterResult(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req resultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	r, err := h.svc.EnterResult(c.Request().Context(), id, req.Value, req.Comment, actor(c), time.Time{})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type rejectRequest struct {
	Reason RejectReason `json:"reason" validate:"required"`
	Detail string       `json:"detail"`
}

func (h *Handler) RejectRecord(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	r, err := h.svc.RejectRecord(c.Request().Context(), id, req.Reason, req.Detail, actor(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRejectedRecords(c echo.Context) error {
	labID, err := paramID(c, "lab_id")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRejectedRecords(c.Request().Context(), labID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListRecordRevisions(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	revs, err := h.svc.ListRecordRevisions(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, revs)
}

type rejectReasonView struct {
	Code  RejectReason `json:"code"`
	Label string       `json:"label"`
}

func (h *Handler) ListRejectReasons(c echo.Context) error {
	out := make([]rejectReasonView, 0, len(RejectReasons))
	for _, r := range RejectReasons {
		out = append(out, rejectReasonView{Code: r, Label: r.Label()})
	}
	return c.JSON(http.StatusOK, out)
}
