package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/referral-tree-backend/internal/reqctx"
	"github.com/shinyyama/referral-tree-backend/internal/service"
)

type ReferralHandler struct {
	svc service.ReferralService
}

func NewReferralHandler(svc service.ReferralService) *ReferralHandler {
	return &ReferralHandler{svc: svc}
}

type registerRequest struct {
	Name          string  `json:"name" validate:"required,max=120"`
	InitialPoints int64   `json:"initialPoints"`
	ReferrerID    *uint64 `json:"referrerId"`
}

type updatePointsRequest struct {
	Points *int64 `json:"points" validate:"required"`
}

func (h *ReferralHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", err.Error()))
	}
	id, err := h.svc.Register(c.Request().Context(), service.RegisterInput{
		Name:          req.Name,
		InitialPoints: req.InitialPoints,
		ReferrerID:    req.ReferrerID,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"id": id})
}

func (h *ReferralHandler) List(c echo.Context) error {
	users, err := h.svc.ListUsers(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"users": users})
}

func (h *ReferralHandler) UpdatePoints(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	var req updatePointsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid json"))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", "points is required"))
	}
	if err := h.svc.UpdatePoints(c.Request().Context(), id, *req.Points); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *ReferralHandler) Scoreboard(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	sb, err := h.svc.Scoreboard(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (h *ReferralHandler) Tree(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	view, err := h.svc.FullTree(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *ReferralHandler) Referrals(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	users, err := h.svc.Referrals(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"referrals": users})
}

func (h *ReferralHandler) History(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid id"))
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid limit"))
		}
		limit = n
	}
	list, err := h.svc.History(c.Request().Context(), id, limit)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"history": list})
}

func (h *ReferralHandler) Reset(c echo.Context) error {
	if err := h.svc.ResetSystem(c.Request().Context()); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *ReferralHandler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func writeServiceError(c echo.Context, err error) error {
	switch service.KindOf(err) {
	case service.KindValidation:
		if service.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", err.Error()))
		}
		return c.JSON(http.StatusBadRequest, NewErrorResponse("validation_error", err.Error()))
	case service.KindConstraintViolation:
		return c.JSON(http.StatusConflict, NewErrorResponse("position_taken", err.Error()))
	case service.KindStructuralCorruption:
		log.Printf("[http] rid=%s path=%s corruption err=%v", reqctx.RID(c.Request().Context()), c.Path(), err)
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("structural_corruption", "tree data is inconsistent"))
	default:
		log.Printf("[http] rid=%s path=%s err=%v", reqctx.RID(c.Request().Context()), c.Path(), err)
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "internal error"))
	}
}
