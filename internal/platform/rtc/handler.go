package rtc

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thriveai/companion/internal/platform/auth"
)

// Handler issues room-join tokens to authenticated users.
type Handler struct {
	minter *TokenMinter
}

func NewHandler(minter *TokenMinter) *Handler {
	return &Handler{minter: minter}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/rtc/token", h.Token)
}

type tokenRequest struct {
	Room string `json:"room"`
}

type tokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url,omitempty"`
}

func (h *Handler) Token(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	room := req.Room
	if room == "" {
		room = "companion-" + userID
	}

	token, err := h.minter.Mint(userID, auth.NameFromContext(ctx), room)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "voice sessions are not configured")
		}
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, URL: h.minter.ServerURL()})
}
