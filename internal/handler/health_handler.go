package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/referral-tree-backend/internal/service"
)

type HealthHandler struct {
	svc   service.ReferralService
	sha   string
	build string
}

func NewHealthHandler(svc service.ReferralService, sha, buildTime string) *HealthHandler {
	return &HealthHandler{svc: svc, sha: sha, build: buildTime}
}

// Get answers 503 until the database is reachable and migrated.
func (h *HealthHandler) Get(c echo.Context) error {
	hc := h.svc.Health(c.Request().Context())
	code := http.StatusOK
	if !hc.OK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]interface{}{
		"ok":         hc.OK,
		"database":   hc.Database,
		"tables":     hc.Tables,
		"git_sha":    h.sha,
		"build_time": h.build,
	})
}
