package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/thriveai/companion/internal/platform/auth"
	ws "github.com/thriveai/companion/internal/platform/websocket"
)

const (
	// closeUnauthorized is the application close code for a bad stream
	// token. Browsers cannot set headers on websocket dials, so the token
	// rides in the query string and is checked after the upgrade.
	closeUnauthorized = 4401

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

type Handler struct {
	svc      *Service
	hub      *ws.Hub
	jwtCfg   auth.JWTConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(svc *Service, hub *ws.Hub, jwtCfg auth.JWTConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		hub:    hub,
		jwtCfg: jwtCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("handler", "metrics").Logger(),
	}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/metrics", h.Record)
	g.GET("/metrics", h.List)
	g.GET("/metrics/latest", h.Latest)
}

// RegisterStream mounts the websocket route on a group that skips the HTTP
// auth middleware; the stream authenticates via its token query parameter.
func (h *Handler) RegisterStream(g *echo.Group) {
	g.GET("/metrics/stream", h.Stream)
}

func (h *Handler) Record(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	m, err := h.svc.Record(c.Request().Context(), userID, in)
	if err != nil {
		if errors.Is(err, ErrInvalidMetric) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) List(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := h.svc.List(c.Request().Context(), userID, c.QueryParam("kind"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Latest(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())

	out, err := h.svc.Latest(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// lockedConn serializes WriteJSON calls so hub publishes cannot interleave
// with the handler's own writes. WriteControl is already concurrency-safe in
// gorilla.
type lockedConn struct {
	mu sync.Mutex
	*websocket.Conn
}

func (c *lockedConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// Stream upgrades to a websocket, replays a short backlog and then forwards
// live metrics as they are recorded.
func (h *Handler) Stream(c echo.Context) error {
	raw, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := &lockedConn{Conn: raw}

	claims, err := auth.VerifyToken(h.jwtCfg, c.QueryParam("token"))
	if err != nil {
		msg := websocket.FormatCloseMessage(closeUnauthorized, "invalid token")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return nil
	}
	userID := claims.Subject

	sub := h.hub.Subscribe(userID, conn)
	defer sub.Close()

	backlog, err := h.svc.Snapshot(c.Request().Context(), userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("stream snapshot failed")
	} else {
		for i := len(backlog) - 1; i >= 0; i-- {
			if err := conn.WriteJSON(backlog[i]); err != nil {
				return nil
			}
		}
	}

	// Keepalive: server pings, client pongs, reads only exist to notice the
	// peer going away.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return nil
			}
		}
	}
}
