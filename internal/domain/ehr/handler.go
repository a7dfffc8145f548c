package ehr

import (
	"errors"
	"html"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/thriveai/companion/internal/platform/auth"
)

// Handler exposes the EHR connection lifecycle over HTTP. Every route except
// the vendor callback requires an authenticated principal; the callback is
// hit by a browser redirect and authenticates via the state token instead.
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With().Str("handler", "ehr").Logger()}
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/ehr/auth-url", h.AuthURL)
	g.GET("/ehr/callback", h.Callback)
	g.GET("/ehr/connection", h.Connection)
	g.POST("/ehr/disconnect", h.Disconnect)
	g.GET("/ehr/vitals", h.Vitals)
}

func (h *Handler) AuthURL(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	start, err := h.svc.BeginAuthorization(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "EHR integration is not configured")
		}
		return err
	}
	return c.JSON(http.StatusOK, start)
}

// Callback terminates the browser redirect from the vendor, so it answers in
// HTML rather than JSON. Vendor error bodies never reach this page; the
// operator-facing detail goes to the log.
func (h *Handler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	providerError := c.QueryParam("error")

	err := h.svc.CompleteAuthorization(c.Request().Context(), code, state, providerError)
	if err == nil {
		return c.HTML(http.StatusOK, callbackPage("Connected to your EHR.", "You can close this window and return to the app."))
	}

	var denied *AuthorizationDeniedError
	switch {
	case errors.As(err, &denied):
		return c.HTML(http.StatusBadRequest, callbackPage("Connection failed.", "The provider reported: "+html.EscapeString(denied.Reason)))
	case errors.Is(err, ErrInvalidCallback):
		return c.HTML(http.StatusBadRequest, callbackPage("Connection failed.", "The authorization response was incomplete."))
	case errors.Is(err, ErrSessionExpired):
		return c.HTML(http.StatusBadRequest, callbackPage("Session expired.", "Please restart the connection from the app."))
	default:
		var upstream *UpstreamAuthError
		if errors.As(err, &upstream) {
			h.logger.Error().Int("status", upstream.StatusCode).Str("body", upstream.Body).Msg("token exchange rejected")
		} else {
			h.logger.Error().Err(err).Msg("authorization callback failed")
		}
		return c.HTML(http.StatusBadGateway, callbackPage("Connection failed.", "The EHR provider could not complete the connection. Please try again."))
	}
}

func (h *Handler) Connection(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	status, err := h.svc.ConnectionStatus(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) Disconnect(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	if err := h.svc.Disconnect(c.Request().Context(), userID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Vitals(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	records, err := h.svc.Vitals(c.Request().Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConnected):
			return echo.NewHTTPError(http.StatusNotFound, "EHR connection not found")
		case errors.Is(err, ErrPatientNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "patient record not found")
		case errors.Is(err, ErrNotConfigured):
			return echo.NewHTTPError(http.StatusServiceUnavailable, "FHIR endpoint is not configured")
		}
		var upstream *UpstreamFetchError
		if errors.As(err, &upstream) {
			h.logger.Error().Int("status", upstream.StatusCode).Str("body", upstream.Body).Msg("vitals fetch rejected upstream")
			return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch vitals from the EHR provider")
		}
		return err
	}
	return c.JSON(http.StatusOK, records)
}

func callbackPage(heading, detail string) string {
	return `<!doctype html>
<html>
<head><title>EHR Connection</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4rem;">
<h2>` + heading + `</h2>
<p>` + detail + `</p>
</body>
</html>`
}
