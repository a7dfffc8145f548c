package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thriveai/companion/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/profile", h.Get)
	g.PUT("/profile", h.Update)
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	u, err := h.svc.Profile(ctx, auth.UserIDFromContext(ctx), auth.EmailFromContext(ctx), auth.NameFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := h.svc.Update(ctx, auth.UserIDFromContext(ctx), auth.EmailFromContext(ctx), auth.NameFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}
