package insights

import (
	"net/http"
	"strconv"

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
	g.POST("/insights", h.Generate)
	g.GET("/insights", h.List)
}

func (h *Handler) Generate(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	in, err := h.svc.Generate(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, in)
}

func (h *Handler) List(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := h.svc.List(c.Request().Context(), userID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}
