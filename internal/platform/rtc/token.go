// Package rtc mints LiveKit-compatible access tokens for voice sessions.
// Tokens are plain HS256 JWTs carrying a video grant, signed with the API
// secret; the media server itself runs elsewhere.
package rtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotConfigured means no API key pair is present, so tokens cannot be
// minted.
var ErrNotConfigured = errors.New("rtc credentials not configured")

const defaultTokenTTL = time.Hour

type Config struct {
	APIKey    string
	APISecret string
	ServerURL string
	TokenTTL  time.Duration
}

// videoGrant mirrors the LiveKit claim shape.
type videoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	CanPublish   bool   `json:"canPublish,omitempty"`
	CanSubscribe bool   `json:"canSubscribe,omitempty"`
}

type roomClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video videoGrant `json:"video"`
}

// TokenMinter issues room-join tokens for one LiveKit deployment.
type TokenMinter struct {
	cfg Config
	now func() time.Time
}

func NewTokenMinter(cfg Config) *TokenMinter {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &TokenMinter{cfg: cfg, now: time.Now}
}

// Configured reports whether a key pair is present.
func (m *TokenMinter) Configured() bool {
	return m.cfg.APIKey != "" && m.cfg.APISecret != ""
}

// ServerURL is the media server clients should dial with the token.
func (m *TokenMinter) ServerURL() string {
	return m.cfg.ServerURL
}

// Mint issues a join token for the given identity and room.
func (m *TokenMinter) Mint(identity, displayName, room string) (string, error) {
	if !m.Configured() {
		return "", ErrNotConfigured
	}
	if identity == "" || room == "" {
		return "", errors.New("identity and room are required")
	}

	now := m.now()
	claims := roomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.APIKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TokenTTL)),
		},
		Name: displayName,
		Video: videoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("sign rtc token: %w", err)
	}
	return signed, nil
}
