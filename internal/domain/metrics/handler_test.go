package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/thriveai/companion/internal/platform/auth"
	ws "github.com/thriveai/companion/internal/platform/websocket"
)

func signTestToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := gojwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func metricsFixture() (*Service, *Handler, *ws.Hub) {
	hub := ws.NewHub(zerolog.Nop())
	svc := NewService(&memRepo{}, hub, nil, zerolog.Nop())
	h := NewHandler(svc, hub, auth.JWTConfig{SigningKey: []byte("test-secret")}, zerolog.Nop())
	return svc, h, hub
}

func authedJSONRequest(method, target, userID, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandlerRecord(t *testing.T) {
	_, h, _ := metricsFixture()

	c, rec := authedJSONRequest(http.MethodPost, "/v1/metrics", "user-1",
		`{"kind":"heart_rate","value":72,"unit":"bpm"}`)
	if err := h.Record(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status: got %d", rec.Code)
	}

	var m Metric
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if m.Kind != "heart_rate" || m.Value != 72 || m.UserID != "user-1" {
		t.Errorf("metric: got %+v", m)
	}
}

func TestHandlerRecord_MissingKind(t *testing.T) {
	_, h, _ := metricsFixture()

	c, _ := authedJSONRequest(http.MethodPost, "/v1/metrics", "user-1", `{"value":72}`)
	err := h.Record(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandlerList_FilterAndLimit(t *testing.T) {
	svc, h, _ := metricsFixture()
	svc.Record(context.Background(), "user-1", RecordInput{Kind: "heart_rate", Value: 70})
	svc.Record(context.Background(), "user-1", RecordInput{Kind: "weight", Value: 80})

	c, rec := authedJSONRequest(http.MethodGet, "/v1/metrics?kind=heart_rate", "user-1", "")
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out []Metric
	json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out) != 1 || out[0].Kind != "heart_rate" {
		t.Errorf("filtered list: got %+v", out)
	}
}

func streamServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	e := echo.New()
	h.RegisterStream(e.Group("/v1"))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dialStream(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/metrics/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandlerStream_RejectsBadToken(t *testing.T) {
	_, h, _ := metricsFixture()
	srv := streamServer(t, h)

	conn := dialStream(t, srv, "garbage")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != closeUnauthorized {
		t.Errorf("close code: got %d, want %d", closeErr.Code, closeUnauthorized)
	}
}

func TestHandlerStream_SnapshotThenLive(t *testing.T) {
	svc, h, _ := metricsFixture()
	svc.Record(context.Background(), "user-1", RecordInput{Kind: "weight", Value: 70})

	srv := streamServer(t, h)
	conn := dialStream(t, srv, signTestToken(t, "test-secret", "user-1"))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var snapshot Metric
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Kind != "weight" {
		t.Errorf("snapshot: got %+v", snapshot)
	}

	// A metric recorded while connected arrives as a live update.
	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Subscribers("user-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := svc.Record(context.Background(), "user-1", RecordInput{Kind: "heart_rate", Value: 72}); err != nil {
		t.Fatal(err)
	}

	var live Metric
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatalf("read live update: %v", err)
	}
	if live.Kind != "heart_rate" {
		t.Errorf("live update: got %+v", live)
	}
}

func TestHandlerStream_IsolatesUsers(t *testing.T) {
	svc, h, _ := metricsFixture()
	srv := streamServer(t, h)

	conn := dialStream(t, srv, signTestToken(t, "test-secret", "user-1"))

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Subscribers("user-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	svc.Record(context.Background(), "user-2", RecordInput{Kind: "heart_rate", Value: 99})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var leaked Metric
	if err := conn.ReadJSON(&leaked); err == nil {
		t.Errorf("received another user's metric: %+v", leaked)
	}
}
