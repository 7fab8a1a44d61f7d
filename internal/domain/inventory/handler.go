package inventory

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinic/internal/platform/auth"
	"github.com/clinicflow/clinic/pkg/pagination"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleDentist))
	read.GET("/stock-outs", h.ListStockOuts)
}

func (h *Handler) ListStockOuts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.ledger.ListEvents(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
